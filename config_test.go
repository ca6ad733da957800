package gocbbridge

import (
	"time"

	"github.com/couchbase/gocbcore/v10"
)

func (suite *UnitTestSuite) TestConfigDefaults() {
	config := &Config{}
	suite.Assert().Equal(defaultKVTimeout, config.kvTimeout())
	suite.Assert().Equal(defaultConnectTimeout, config.connectTimeout())
	suite.Assert().IsType(&LegacyTranscoder{}, config.transcoder())

	config = &Config{
		KVTimeout:      time.Second,
		ConnectTimeout: 3 * time.Second,
		Transcoder:     NewRawBinaryTranscoder(),
	}
	suite.Assert().Equal(time.Second, config.kvTimeout())
	suite.Assert().Equal(3*time.Second, config.connectTimeout())
	suite.Assert().IsType(&RawBinaryTranscoder{}, config.transcoder())
}

func (suite *UnitTestSuite) TestConfigFromConnStr() {
	config := &Config{}
	connStr := "couchbase://10.0.0.1,10.0.0.2/travel-sample?kv_timeout=5s&connect_timeout=2000&durability_poll_interval=10ms"
	suite.Require().NoError(config.FromConnStr(connStr))

	suite.Assert().Equal(connStr, config.ConnStr)
	suite.Assert().Equal("travel-sample", config.DefaultBucket)
	suite.Assert().Equal(5*time.Second, config.KVTimeout)
	suite.Assert().Equal(2*time.Second, config.ConnectTimeout)
	suite.Assert().Equal(10*time.Millisecond, config.DurabilityPollInterval)

	// Options are applied in order, the last occurrence wins.
	config = &Config{DefaultBucket: "keep"}
	suite.Require().NoError(config.FromConnStr("couchbase://localhost?kv_timeout=1s&kv_timeout=3s"))
	suite.Assert().Equal(3*time.Second, config.KVTimeout)
	suite.Assert().Equal("keep", config.DefaultBucket)
}

func (suite *UnitTestSuite) TestConfigFromConnStrRejections() {
	for _, connStr := range []string{
		"couchbase://localhost?kv_timeout=soon",
		"couchbase://localhost?connect_timeout=",
		"couchbase://localhost?durability_poll_interval=1x",
	} {
		config := &Config{}
		err := config.FromConnStr(connStr)
		suite.Assert().ErrorIs(err, ErrInvalidArgument, connStr)
	}
}

func (suite *UnitTestSuite) TestParseDurationOption() {
	dur, err := parseDurationOption("250ms")
	suite.Require().NoError(err)
	suite.Assert().Equal(250*time.Millisecond, dur)

	dur, err = parseDurationOption("1500")
	suite.Require().NoError(err)
	suite.Assert().Equal(1500*time.Millisecond, dur)

	_, err = parseDurationOption("1.5.0")
	suite.Assert().Error(err)
}

func (suite *UnitTestSuite) TestAgentGroupConfig() {
	config := &Config{
		ConnStr:          "couchbase://localhost",
		Username:         "Administrator",
		Password:         "password",
		Tracer:           suite.tracer,
		NoRootTraceSpans: true,
		Meter:            suite.meter,
	}

	agentConfig, err := config.agentGroupConfig()
	suite.Require().NoError(err)
	suite.Assert().Equal("gocbbridge/"+Version(), agentConfig.UserAgent)
	suite.Assert().Equal(gocbcore.PasswordAuthProvider{
		Username: "Administrator",
		Password: "password",
	}, agentConfig.SecurityConfig.Auth)
	suite.Assert().True(agentConfig.IoConfig.UseMutationTokens)
	suite.Assert().True(agentConfig.IoConfig.UseCollections)
	suite.Assert().True(agentConfig.CompressionConfig.Enabled)
	suite.Assert().True(agentConfig.CompressionConfig.DisableDecompression)
	suite.Assert().Equal(suite.tracer, agentConfig.TracerConfig.Tracer)
	suite.Assert().True(agentConfig.TracerConfig.NoRootTraceSpans)
	suite.Assert().Equal(suite.meter, agentConfig.MeterConfig.Meter)

	config.ConnStr = "wat://localhost"
	_, err = config.agentGroupConfig()
	suite.Assert().Error(err)
}
