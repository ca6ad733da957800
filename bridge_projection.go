package gocbbridge

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/couchbase/gocbcore/v10"
	"github.com/couchbase/gocbcore/v10/memd"
)

const (
	maxLookupInOps   = 16
	expiryXattrPath  = "$document.exptime"
	flagsXattrPath   = "$document.flags"
	projectedDocPath = ""
)

// getProjected reads the requested paths, and the expiry when asked for, with a single
// LookupIn. When there are too many paths for one request the whole document is fetched
// and projected locally.
func (b *kvBridge) getProjected(desc *opDescriptor, deadline time.Time, traceCtx gocbcore.RequestSpanContext,
	complete func(*nativeResponse, error)) error {
	var ops []gocbcore.SubDocOp
	if desc.withExpiry {
		ops = append(ops,
			gocbcore.SubDocOp{Op: memd.SubDocOpGet, Flags: memd.SubdocFlagXattrPath, Path: expiryXattrPath},
			gocbcore.SubDocOp{Op: memd.SubDocOpGet, Flags: memd.SubdocFlagXattrPath, Path: flagsXattrPath},
		)
	}
	numXattrOps := len(ops)

	fullDoc := len(desc.project) == 0 || numXattrOps+len(desc.project) > maxLookupInOps
	if fullDoc {
		ops = append(ops, gocbcore.SubDocOp{Op: memd.SubDocOpGetDoc, Path: projectedDocPath})
	} else {
		for _, path := range desc.project {
			ops = append(ops, gocbcore.SubDocOp{Op: memd.SubDocOpGet, Path: path})
		}
	}

	_, err := b.provider.LookupIn(gocbcore.LookupInOptions{
		Key:            []byte(desc.key),
		Ops:            ops,
		ScopeName:      desc.target.Scope,
		CollectionName: desc.target.Collection,
		Deadline:       deadline,
		TraceContext:   traceCtx,
	}, func(res *gocbcore.LookupInResult, err error) {
		if err != nil {
			complete(nil, err)
			return
		}

		resp, err := projectLookupIn(desc, res, numXattrOps, fullDoc)
		if err != nil {
			complete(nil, err)
			return
		}
		complete(resp, nil)
	})
	return err
}

// projectLookupIn assembles the response of a projected get. Per path native failures
// other than a missing path are returned as errors; failures to assemble the payload
// are carried on the response.
func projectLookupIn(desc *opDescriptor, res *gocbcore.LookupInResult, numXattrOps int, fullDoc bool) (*nativeResponse, error) {
	resp := &nativeResponse{
		cas:   res.Cas,
		flags: gocbcore.EncodeCommonFlags(gocbcore.JSONType, gocbcore.NoCompression),
	}

	if len(res.Ops) < numXattrOps+1 {
		resp.buildErr = wrapErrorf(ErrUnableToBuildResult, "lookup returned %d results for %d operations",
			len(res.Ops), numXattrOps+1)
		return resp, nil
	}

	if numXattrOps > 0 {
		expiryOp, flagsOp := res.Ops[0], res.Ops[1]
		if expiryOp.Err != nil {
			return nil, expiryOp.Err
		}

		var expiry uint32
		if err := json.Unmarshal(expiryOp.Value, &expiry); err != nil {
			resp.buildErr = wrapErrorf(ErrUnableToBuildResult, "document expiry could not be decoded: %s", err)
			return resp, nil
		}
		if expiry > 0 {
			resp.expiry = time.Unix(int64(expiry), 0)
		}

		if flagsOp.Err == nil && len(desc.project) == 0 {
			var flags uint32
			if err := json.Unmarshal(flagsOp.Value, &flags); err != nil {
				resp.buildErr = wrapErrorf(ErrUnableToBuildResult, "document flags could not be decoded: %s", err)
				return resp, nil
			}
			resp.flags = flags
		}
	}

	pathOps := res.Ops[numXattrOps:]

	if fullDoc {
		if pathOps[0].Err != nil {
			return nil, pathOps[0].Err
		}
		if len(desc.project) == 0 {
			resp.value = pathOps[0].Value
			return resp, nil
		}

		value, err := projectDocument(pathOps[0].Value, desc.project)
		if err != nil {
			resp.buildErr = err
			return resp, nil
		}
		resp.value = value
		return resp, nil
	}

	projection := newProjection()
	for i, op := range pathOps {
		if i >= len(desc.project) {
			break
		}
		if op.Err != nil {
			if errors.Is(op.Err, gocbcore.ErrPathNotFound) {
				continue
			}
			return nil, op.Err
		}

		var fieldValue interface{}
		if err := json.Unmarshal(op.Value, &fieldValue); err != nil {
			resp.buildErr = wrapErrorf(ErrUnableToBuildResult, "projection %q could not be decoded: %s",
				desc.project[i], err)
			return resp, nil
		}
		if err := projection.set(parsePath(desc.project[i]), fieldValue); err != nil {
			resp.buildErr = err
			return resp, nil
		}
	}

	value, err := json.Marshal(projection.root)
	if err != nil {
		resp.buildErr = wrapErrorf(ErrUnableToBuildResult, "projection could not be encoded: %s", err)
		return resp, nil
	}
	resp.value = value
	return resp, nil
}

// projectDocument extracts paths from a whole JSON document. Paths missing from the
// document are left out.
func projectDocument(doc []byte, paths []string) ([]byte, error) {
	var content interface{}
	if err := json.Unmarshal(doc, &content); err != nil {
		return nil, wrapErrorf(ErrUnableToBuildResult, "document could not be decoded for projection: %s", err)
	}

	projection := newProjection()
	for _, path := range paths {
		segments := parsePath(path)
		fieldValue, ok := lookupPath(content, segments)
		if !ok {
			continue
		}
		if err := projection.set(segments, fieldValue); err != nil {
			return nil, err
		}
	}

	value, err := json.Marshal(projection.root)
	if err != nil {
		return nil, wrapErrorf(ErrUnableToBuildResult, "projection could not be encoded: %s", err)
	}
	return value, nil
}

type pathSegment struct {
	name    string
	indexes []int
}

// parsePath splits a sub-document path such as "a.b[0].c" into its segments.
func parsePath(path string) []pathSegment {
	parts := strings.Split(path, ".")
	segments := make([]pathSegment, 0, len(parts))
	for _, part := range parts {
		segment := pathSegment{name: part}
		if open := strings.IndexByte(part, '['); open > 0 && strings.HasSuffix(part, "]") {
			segment.name = part[:open]
			for _, idx := range strings.Split(part[open+1:len(part)-1], "][") {
				n, err := strconv.Atoi(idx)
				if err != nil {
					segment = pathSegment{name: part}
					break
				}
				segment.indexes = append(segment.indexes, n)
			}
		}
		segment.name = strings.Trim(segment.name, "`")
		segments = append(segments, segment)
	}
	return segments
}

func lookupPath(content interface{}, segments []pathSegment) (interface{}, bool) {
	current := content
	for _, segment := range segments {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[segment.name]
		if !ok {
			return nil, false
		}
		for _, idx := range segment.indexes {
			arr, ok := current.([]interface{})
			if !ok {
				return nil, false
			}
			if idx < 0 {
				idx += len(arr)
			}
			if idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		}
	}
	return current, true
}

// projection reassembles projected paths into one document. Array elements keep the
// order in which they were first projected, and paths through the same source element
// share its projected element.
type projection struct {
	root map[string]interface{}

	// slots maps the source position of each projected array element, written as its
	// path prefix, to its index in the projected array.
	slots map[string]int
}

func newProjection() *projection {
	return &projection{
		root:  make(map[string]interface{}),
		slots: make(map[string]int),
	}
}

type projectionStep struct {
	name    string
	index   int
	isIndex bool
}

// set places value into the projection at the position named by segments.
func (p *projection) set(segments []pathSegment, value interface{}) error {
	var steps []projectionStep
	for _, segment := range segments {
		steps = append(steps, projectionStep{name: segment.name})
		for _, idx := range segment.indexes {
			steps = append(steps, projectionStep{index: idx, isIndex: true})
		}
	}

	_, err := p.place(p.root, steps, "", value)
	return err
}

// place returns node with value written below it. Slices grow when a new element is
// projected, so the caller stores the returned node back into its parent.
func (p *projection) place(node interface{}, steps []projectionStep, prefix string, value interface{}) (interface{}, error) {
	if len(steps) == 0 {
		return value, nil
	}
	step := steps[0]

	if !step.isIndex {
		obj, ok := node.(map[string]interface{})
		if node == nil {
			obj, ok = make(map[string]interface{}), true
		}
		if !ok {
			return nil, wrapErrorf(ErrUnableToBuildResult, "projection path %q conflicts with an earlier path",
				strings.TrimPrefix(prefix, "."))
		}

		prefix += "." + step.name
		child, err := p.place(obj[step.name], steps[1:], prefix, value)
		if err != nil {
			return nil, err
		}
		obj[step.name] = child
		return obj, nil
	}

	arr, ok := node.([]interface{})
	if node != nil && !ok {
		return nil, wrapErrorf(ErrUnableToBuildResult, "projection path %q conflicts with an earlier path",
			strings.TrimPrefix(prefix, "."))
	}

	prefix += "[" + strconv.Itoa(step.index) + "]"
	slot, seen := p.slots[prefix]
	if !seen || slot >= len(arr) {
		arr = append(arr, nil)
		slot = len(arr) - 1
		p.slots[prefix] = slot
	}

	child, err := p.place(arr[slot], steps[1:], prefix, value)
	if err != nil {
		return nil, err
	}
	arr[slot] = child
	return arr, nil
}
