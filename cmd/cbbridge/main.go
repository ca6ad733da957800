package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/couchbaselabs/gocbbridge"
	"github.com/couchbaselabs/gocbbridge/oteltracer"
	"github.com/couchbaselabs/gocbbridge/prommeter"
	"github.com/couchbaselabs/gocbbridge/zaplog"
)

type args struct {
	ConnStr     string        `arg:"--connstr,env:CBBRIDGE_CONNSTR,required" help:"couchbase connection string"`
	Username    string        `arg:"--username,env:CBBRIDGE_USERNAME" default:"Administrator"`
	Password    string        `arg:"--password,env:CBBRIDGE_PASSWORD" default:"password"`
	Bucket      string        `arg:"--bucket,env:CBBRIDGE_BUCKET" default:"default"`
	Scope       string        `arg:"--scope" help:"scope name, together with --collection"`
	Collection  string        `arg:"--collection"`
	Op          string        `arg:"--op" default:"get" help:"operation tag such as get, upsert or get_all_replicas"`
	Key         string        `arg:"--key" help:"document key for a single operation"`
	Value       string        `arg:"--value" help:"JSON document for mutations, raw bytes for append and prepend"`
	Params      string        `arg:"--params" help:"JSON object of operation options, for example {\"expiry\": 10}"`
	Multi       string        `arg:"--multi" help:"JSON file of {key: {options}} to run as one multi operation"`
	Async       bool          `arg:"--async" help:"deliver the single operation through a callback"`
	Timeout     time.Duration `arg:"--timeout" help:"default operation timeout"`
	MetricsAddr string        `arg:"--metrics-addr,env:CBBRIDGE_METRICS_ADDR" help:"serve prometheus metrics on this address"`
	Trace       bool          `arg:"--trace" help:"emit OpenTelemetry spans through the global tracer provider"`
	Verbose     bool          `arg:"--verbose,-v"`
}

func (args) Description() string {
	return "cbbridge runs Couchbase key-value operations through gocbbridge"
}

func main() {
	var cliArgs args
	arg.MustParse(&cliArgs)

	logger, err := newLogger(cliArgs.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck
	gocbbridge.SetLogger(zaplog.New(logger))

	if err := run(cliArgs, logger); err != nil {
		logger.Error("cbbridge failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cliArgs args, logger *zap.Logger) error {
	config := &gocbbridge.Config{
		Username:      cliArgs.Username,
		Password:      cliArgs.Password,
		DefaultBucket: cliArgs.Bucket,
		KVTimeout:     cliArgs.Timeout,
	}
	if err := config.FromConnStr(cliArgs.ConnStr); err != nil {
		return err
	}

	if cliArgs.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		config.Meter = prommeter.New(registry)
		go serveMetrics(cliArgs.MetricsAddr, registry, logger)
	}
	if cliArgs.Trace {
		config.Tracer = oteltracer.New(nil)
	}

	conn, err := gocbbridge.Connect(config)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close connection", zap.Error(err))
		}
	}()

	target := gocbbridge.Target{
		Bucket:     cliArgs.Bucket,
		Scope:      cliArgs.Scope,
		Collection: cliArgs.Collection,
	}

	if cliArgs.Multi != "" {
		return runMulti(conn, target, cliArgs)
	}
	return runSingle(conn, target, cliArgs)
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

func singleParams(cliArgs args) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if cliArgs.Params != "" {
		if err := json.Unmarshal([]byte(cliArgs.Params), &params); err != nil {
			return nil, fmt.Errorf("--params must be a JSON object: %w", err)
		}
	}

	if cliArgs.Value != "" {
		params["value"] = valueParam(cliArgs.Op, []byte(cliArgs.Value))
	}
	return params, nil
}

// valueParam shapes a document value for op. Append and prepend take raw bytes, every
// other operation takes JSON.
func valueParam(op string, value []byte) interface{} {
	switch op {
	case "append", "prepend":
		return value
	default:
		return json.RawMessage(value)
	}
}

// multiEntries parses a multi file of {key: {options}} for op.
func multiEntries(data []byte, op string) (map[string]map[string]interface{}, error) {
	var entries map[string]map[string]interface{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	for _, params := range entries {
		value, ok := params["value"]
		if !ok {
			continue
		}
		// A string value for append or prepend is the bytes to add, not a JSON document.
		if str, isString := value.(string); isString && (op == "append" || op == "prepend") {
			params["value"] = []byte(str)
			continue
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		params["value"] = valueParam(op, encoded)
	}
	return entries, nil
}

func runSingle(conn *gocbbridge.Connection, target gocbbridge.Target, cliArgs args) error {
	if cliArgs.Key == "" {
		return fmt.Errorf("--key is required for a single operation")
	}

	params, err := singleParams(cliArgs)
	if err != nil {
		return err
	}

	if !cliArgs.Async {
		res, err := conn.DoMap(target, cliArgs.Op, cliArgs.Key, params)
		if err != nil {
			return err
		}
		return printResult(res)
	}

	var wg sync.WaitGroup
	var opErr error
	wg.Add(1)
	params["callback"] = func(res *gocbbridge.Result) {
		defer wg.Done()
		opErr = printResult(res)
	}
	params["errback"] = func(err error) {
		defer wg.Done()
		opErr = err
	}

	if _, err := conn.DoMap(target, cliArgs.Op, cliArgs.Key, params); err != nil {
		return err
	}
	wg.Wait()
	return opErr
}

func runMulti(conn *gocbbridge.Connection, target gocbbridge.Target, cliArgs args) error {
	data, err := os.ReadFile(cliArgs.Multi)
	if err != nil {
		return err
	}

	entries, err := multiEntries(data, cliArgs.Op)
	if err != nil {
		return fmt.Errorf("%s must hold a JSON object of key to options: %w", cliArgs.Multi, err)
	}

	multi := conn.DoMultiMap(target, cliArgs.Op, entries)
	for _, key := range multi.Keys() {
		if err := multi.Err(key); err != nil {
			fmt.Printf("%s: error: %v\n", key, err)
			continue
		}
		fmt.Printf("%s: ", key)
		if err := printResult(multi.Result(key)); err != nil {
			return err
		}
	}

	if !multi.AllSucceeded() {
		return fmt.Errorf("%d of %d keys failed", len(multi.FailedKeys()), multi.Len())
	}
	return nil
}

type printedResult struct {
	Kind    string          `json:"kind"`
	Key     string          `json:"key"`
	Cas     uint64          `json:"cas,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Exists  *bool           `json:"exists,omitempty"`
	Counter *uint64         `json:"counter,omitempty"`
	Expiry  *time.Time      `json:"expiry,omitempty"`
	Replica bool            `json:"replica,omitempty"`
	Copies  []printedResult `json:"copies,omitempty"`
}

func toPrinted(res *gocbbridge.Result) printedResult {
	out := printedResult{
		Kind:    res.Kind.String(),
		Key:     res.Key,
		Cas:     uint64(res.Cas),
		Replica: res.IsReplica,
	}

	if res.Value != nil {
		var content interface{}
		if err := res.Content(&content); err == nil {
			if encoded, err := json.Marshal(content); err == nil {
				out.Value = encoded
			}
		}
	}
	if !res.Expiry.IsZero() {
		expiry := res.Expiry
		out.Expiry = &expiry
	}

	switch res.Kind {
	case gocbbridge.OpExists:
		exists := res.Exists
		out.Exists = &exists
	case gocbbridge.OpIncrement, gocbbridge.OpDecrement:
		counter := res.Counter
		out.Counter = &counter
	case gocbbridge.OpGetAllReplicas:
		if res.Replicas == nil {
			break
		}
		for copyRes := res.Replicas.Next(); copyRes != nil; copyRes = res.Replicas.Next() {
			out.Copies = append(out.Copies, toPrinted(copyRes))
		}
	}
	return out
}

func printResult(res *gocbbridge.Result) error {
	encoded, err := json.MarshalIndent(toPrinted(res), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
