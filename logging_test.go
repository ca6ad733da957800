package gocbbridge

import (
	"bytes"
	"log"

	"github.com/couchbase/gocbcore/v10"
)

func (suite *UnitTestSuite) TestLogRedaction() {
	SetLogRedactionLevel(RedactFull)
	defer SetLogRedactionLevel(RedactNone)

	var logs bytes.Buffer
	gologger := log.New(&logs, "", 0)
	bridgeLogger := defaultLogger{
		GoLogger: gologger,
		Level:    LogDebug,
	}

	if suite.Assert().NoError(bridgeLogger.Log(LogDebug, 1, redactUserData("sensitive user data"))) {
		suite.Assert().Equal("<ud>sensitive user data</ud>\n", logs.String())
	}

	logs.Reset()

	if suite.Assert().NoError(bridgeLogger.Log(LogDebug, 1, redactMetaData("sensitive meta data"))) {
		suite.Assert().Equal("<md>sensitive meta data</md>\n", logs.String())
	}

	logs.Reset()

	if suite.Assert().NoError(bridgeLogger.Log(LogDebug, 1, redactSystemData("sensitive system data"))) {
		suite.Assert().Equal("<sd>sensitive system data</sd>\n", logs.String())
	}
}

func (suite *UnitTestSuite) TestPartialLogRedaction() {
	SetLogRedactionLevel(RedactPartial)
	defer SetLogRedactionLevel(RedactNone)

	suite.Assert().Equal("<ud>frank</ud>", redactUserData("frank"))
	suite.Assert().Equal("default", redactMetaData("default"))
	suite.Assert().Equal("127.0.0.1", redactSystemData("127.0.0.1"))
	suite.Assert().Equal("default/_default/users/<ud>frank</ud>",
		keyForLog("default", "_default", "users", "frank"))

	SetLogRedactionLevel(RedactNone)
	suite.Assert().Equal("default/_default/users/frank", keyForLog("default", "_default", "users", "frank"))
}

func (suite *UnitTestSuite) TestLogLevelFiltering() {
	var logs bytes.Buffer
	bridgeLogger := defaultLogger{
		GoLogger: log.New(&logs, "", 0),
		Level:    LogWarn,
	}

	suite.Require().NoError(bridgeLogger.Log(LogDebug, 1, "dropped"))
	suite.Assert().Empty(logs.String())

	suite.Require().NoError(bridgeLogger.Log(LogError, 1, "kept %d", 1))
	suite.Assert().Equal("kept 1\n", logs.String())

	suite.Assert().Equal("warn", logLevelToString(LogWarn))
	suite.Assert().Equal("sched", logLevelToString(LogSched))
	suite.Assert().Equal("unknown (42)", logLevelToString(LogLevel(42)))
}

func (suite *UnitTestSuite) TestCoreLoggerForwarding() {
	var logs bytes.Buffer
	forward := coreLogger{logger: &defaultLogger{
		GoLogger: log.New(&logs, "", 0),
		Level:    LogInfo,
	}}

	suite.Require().NoError(forward.Log(gocbcore.LogInfo, 0, "agent %s", "ready"))
	suite.Require().NoError(forward.Log(gocbcore.LogDebug, 0, "too chatty"))
	suite.Assert().Equal("agent ready\n", logs.String())
}
