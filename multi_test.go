package gocbbridge

import (
	"sync"
	"time"

	"github.com/couchbase/gocbcore/v10"
)

func (suite *UnitTestSuite) TestDoMultiMixedKeys() {
	fake := newFakeKV()
	conn := suite.newTestConnection(fake)

	res := conn.DoMulti(Target{}, OpUpsert, map[string]*Options{
		"frank":  {Value: map[string]string{"name": "frank"}},
		"barry":  {Value: map[string]string{"name": "barry"}},
		"broken": {Value: "x", LockTime: time.Second},
	})

	suite.Assert().Equal(3, res.Len())
	suite.Assert().False(res.AllSucceeded())
	suite.Assert().Equal([]string{"barry", "broken", "frank"}, res.Keys())
	suite.Assert().Equal([]string{"broken"}, res.FailedKeys())

	suite.Assert().ErrorIs(res.Err("broken"), ErrInvalidArgument)
	suite.Assert().Nil(res.Result("broken"))
	suite.requireOperationError(res.Err("broken"), ErrorClassInvalidArgument)

	for _, key := range []string{"frank", "barry"} {
		suite.Assert().NoError(res.Err(key))
		result := res.Result(key)
		suite.Require().NotNil(result, key)
		suite.Assert().Equal(gocbcore.Cas(107), result.Cas)
		suite.Require().NotNil(result.MutationToken)
		suite.Assert().Equal(fakeToken(), *result.MutationToken)
	}

	// The rejected key never reaches the native layer.
	suite.Assert().Equal(2, fake.CallCount("Set"))
}

func (suite *UnitTestSuite) TestDoMultiPerKeyFailures() {
	fake := newFakeKV()
	fake.handle("Get", func(opts interface{}) fakeReply {
		if string(opts.(gocbcore.GetOptions).Key) == "missing" {
			return fakeReply{err: gocbcore.ErrDocumentNotFound, delay: 5 * time.Millisecond}
		}
		return fakeReply{res: &gocbcore.GetResult{Value: []byte(`{}`), Flags: fakeJSONFlags, Cas: 1}}
	})
	conn := suite.newTestConnection(fake)

	res := conn.DoMulti(Target{}, OpGet, map[string]*Options{
		"frank":   nil,
		"missing": nil,
	})
	suite.Assert().False(res.AllSucceeded())
	suite.Assert().Equal([]string{"missing"}, res.FailedKeys())
	suite.Assert().ErrorIs(res.Err("missing"), gocbcore.ErrDocumentNotFound)
	suite.requireOperationError(res.Err("missing"), ErrorClassNative)

	outcome, ok := res.Outcome("frank")
	suite.Require().True(ok)
	suite.Assert().True(outcome.Succeeded())
	suite.Assert().Nil(outcome.OperationError())

	// Exists reports a missing document as a success, so the multi result does too.
	fake.reply("GetMeta", fakeReply{err: gocbcore.ErrDocumentNotFound})
	res = conn.DoMulti(Target{}, OpExists, map[string]*Options{"missing": nil})
	suite.Assert().True(res.AllSucceeded())
	suite.Require().NotNil(res.Result("missing"))
	suite.Assert().False(res.Result("missing").Exists)
}

func (suite *UnitTestSuite) TestDoMultiUnknownKey() {
	fake := newFakeKV()
	conn := suite.newTestConnection(fake)

	res := conn.DoMulti(Target{}, OpGet, map[string]*Options{"frank": nil})
	suite.Require().True(res.AllSucceeded())

	outcome, ok := res.Outcome("nobody")
	suite.Assert().False(ok)
	suite.Assert().False(outcome.Succeeded())
	suite.Assert().Nil(res.Result("nobody"))
	suite.Assert().NoError(res.Err("nobody"))
}

func (suite *UnitTestSuite) TestDoMultiEmpty() {
	fake := newFakeKV()
	conn := suite.newTestConnection(fake)

	res := conn.DoMulti(Target{}, OpGet, nil)
	suite.Assert().Equal(0, res.Len())
	suite.Assert().True(res.AllSucceeded())
	suite.Assert().Empty(res.Keys())
	suite.Assert().Empty(res.FailedKeys())
	suite.Assert().Empty(fake.Calls())
}

func (suite *UnitTestSuite) TestDoMultiMapUnknownTag() {
	fake := newFakeKV()
	conn := suite.newTestConnection(fake)

	res := conn.DoMultiMap(Target{}, "get_everything", map[string]map[string]interface{}{
		"frank": nil,
		"barry": {"timeout": 1},
	})
	suite.Assert().Equal(2, res.Len())
	suite.Assert().False(res.AllSucceeded())
	suite.Assert().Equal([]string{"barry", "frank"}, res.FailedKeys())
	suite.Assert().ErrorIs(res.Err("frank"), ErrInvalidArgument)
	suite.Assert().ErrorIs(res.Err("barry"), ErrInvalidArgument)
	suite.Assert().Empty(fake.Calls())
}

func (suite *UnitTestSuite) TestDoMultiMapOptions() {
	fake := newFakeKV()
	conn := suite.newTestConnection(fake)

	res := conn.DoMultiMap(Target{}, "touch", map[string]map[string]interface{}{
		"frank": {"expiry": 10},
		"barry": {"expiry": "soon"},
		"carla": {"not_an_option": true},
	})
	suite.Assert().Equal([]string{"barry", "carla"}, res.FailedKeys())
	suite.Require().NotNil(res.Result("frank"))
	suite.Assert().Equal(gocbcore.Cas(104), res.Result("frank").Cas)

	suite.Require().Equal(1, fake.CallCount("Touch"))
	touchOpts := fake.lastCall("Touch").(gocbcore.TouchOptions)
	suite.Assert().Equal(uint32(10), touchOpts.Expiry)
}

func (suite *UnitTestSuite) TestDoMultiIgnoresContinuations() {
	fake := newFakeKV()
	conn := suite.newTestConnection(fake)

	var called bool
	var calledLock sync.Mutex
	res := conn.DoMulti(Target{}, OpGet, map[string]*Options{
		"frank": {
			Callback: func(*Result) {
				calledLock.Lock()
				called = true
				calledLock.Unlock()
			},
			Errback: func(error) {
				calledLock.Lock()
				called = true
				calledLock.Unlock()
			},
		},
	})

	suite.Assert().True(res.AllSucceeded())
	suite.Require().NotNil(res.Result("frank"))

	fake.drain()
	calledLock.Lock()
	suite.Assert().False(called)
	calledLock.Unlock()
}

func (suite *UnitTestSuite) TestDoMultiExecutionLock() {
	fake := newFakeKV()
	fake.reply("Get", fakeReply{
		res:   &gocbcore.GetResult{Value: []byte(`{}`), Flags: fakeJSONFlags, Cas: 1},
		delay: 20 * time.Millisecond,
	})
	lock := &sync.Mutex{}
	conn := suite.newTestConnection(fake, func(config *Config) {
		config.ExecutionLock = lock
	})

	lock.Lock()
	released := make(chan struct{})
	go func() {
		// Only succeeds if the multi operation gives up the lock while it waits.
		lock.Lock()
		lock.Unlock()
		close(released)
	}()

	res := conn.DoMulti(Target{}, OpGet, map[string]*Options{"a": nil, "b": nil, "c": nil})
	suite.Assert().True(res.AllSucceeded())
	suite.Assert().False(lock.TryLock())

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		suite.T().Fatal("execution lock was never released during the multi operation")
	}
	lock.Unlock()
}
