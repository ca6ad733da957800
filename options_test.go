package gocbbridge

import (
	"math"
	"time"

	"github.com/couchbase/gocbcore/v10"
)

func (suite *UnitTestSuite) TestOptionsFromMap() {
	span := suite.tracer.RequestSpan(nil, "parent")
	var gotResult *Result
	var gotErr error

	opts, err := OptionsFromMap(map[string]interface{}{
		"span":            span,
		"expiry":          90,
		"cas":             gocbcore.Cas(12),
		"timeout":         1.5,
		"durability":      "majority",
		"lock_time":       10 * time.Second,
		"project":         []interface{}{"a", "b.c"},
		"with_expiry":     true,
		"preserve_expiry": false,
		"callback":        func(res *Result) { gotResult = res },
		"errback":         func(err error) { gotErr = err },
		"value":           map[string]string{"a": "b"},
		"delta":           int64(3),
		"initial":         uint32(7),
		"ignored":         nil,
	})
	suite.Require().NoError(err)

	suite.Assert().Equal(span, opts.Span)
	suite.Assert().Equal(90*time.Second, opts.Expiry)
	suite.Assert().Equal(gocbcore.Cas(12), opts.Cas)
	suite.Assert().Equal(1500*time.Millisecond, opts.Timeout)
	suite.Assert().Equal(&Durability{Level: DurabilityLevelMajority}, opts.Durability)
	suite.Assert().Equal(10*time.Second, opts.LockTime)
	suite.Assert().Equal([]string{"a", "b.c"}, opts.Project)
	suite.Assert().True(opts.WithExpiry)
	suite.Assert().False(opts.PreserveExpiry)
	suite.Assert().Equal(map[string]string{"a": "b"}, opts.Value)
	suite.Assert().Equal(uint64(3), opts.Delta)
	suite.Require().NotNil(opts.Initial)
	suite.Assert().Equal(uint64(7), *opts.Initial)
	suite.Assert().True(opts.hasContinuation())

	opts.Callback(&Result{Cas: 1})
	opts.Errback(ErrInvalidArgument)
	suite.Assert().Equal(gocbcore.Cas(1), gotResult.Cas)
	suite.Assert().Equal(ErrInvalidArgument, gotErr)
}

func (suite *UnitTestSuite) TestOptionsFromMapEmpty() {
	opts, err := OptionsFromMap(nil)
	suite.Require().NoError(err)
	suite.Assert().Equal(&Options{}, opts)
	suite.Assert().False(opts.hasContinuation())

	var nilOpts *Options
	suite.Assert().False(nilOpts.hasContinuation())
}

func (suite *UnitTestSuite) TestOptionsFromMapRejections() {
	testCases := map[string]map[string]interface{}{
		"unknown option":             {"not_an_option": 1},
		"span of the wrong type":     {"span": "parent"},
		"negative expiry":            {"expiry": -1},
		"negative duration":          {"timeout": -time.Second},
		"non numeric timeout":        {"timeout": "1s"},
		"nan timeout":                {"timeout": math.NaN()},
		"negative cas":               {"cas": -5},
		"fractional cas":             {"cas": 1.5},
		"string cas":                 {"cas": "12"},
		"non bool with_expiry":       {"with_expiry": 1},
		"callback of the wrong type": {"callback": func() {}},
		"errback of the wrong type":  {"errback": func(*Result) {}},
		"project of the wrong type":  {"project": "a.b"},
		"project with a number":      {"project": []interface{}{"a", 1}},
		"unknown durability":         {"durability": "everywhere"},
		"durability of wrong type":   {"durability": 1.5},
		"unknown durability key":     {"durability": map[string]interface{}{"level": "majority", "nodes": 2}},
		"negative persist_to":        {"durability": map[string]interface{}{"persist_to": -1}},
	}

	for name, params := range testCases {
		suite.Run(name, func() {
			opts, err := OptionsFromMap(params)
			suite.Assert().ErrorIs(err, ErrInvalidArgument)
			suite.Assert().Nil(opts)
		})
	}
}

func (suite *UnitTestSuite) TestDurabilityOptionForms() {
	durability, err := durabilityOption(DurabilityLevelPersistToMajority)
	suite.Require().NoError(err)
	suite.Assert().Equal(DurabilityLevelPersistToMajority, durability.Level)

	durability, err = durabilityOption(Durability{PersistTo: 1})
	suite.Require().NoError(err)
	suite.Assert().Equal(uint(1), durability.PersistTo)

	given := &Durability{ReplicateTo: 2}
	durability, err = durabilityOption(given)
	suite.Require().NoError(err)
	suite.Assert().Same(given, durability)

	durability, err = durabilityOption(map[string]interface{}{
		"persist_to":   1,
		"replicate_to": uint32(2),
	})
	suite.Require().NoError(err)
	suite.Assert().Equal(&Durability{PersistTo: 1, ReplicateTo: 2}, durability)

	durability, err = durabilityOption(map[string]interface{}{"durability_level": 1})
	suite.Require().NoError(err)
	suite.Assert().Equal(DurabilityLevelMajority, durability.Level)

	durability, err = durabilityOption(map[string]interface{}{"level": DurabilityLevelMajorityAndPersistOnMaster})
	suite.Require().NoError(err)
	suite.Assert().Equal(DurabilityLevelMajorityAndPersistOnMaster, durability.Level)
}

func (suite *UnitTestSuite) TestOptionsFromMapThroughDo() {
	fake := newFakeKV()
	conn := suite.newTestConnection(fake)

	res, err := conn.DoMap(Target{}, "get_and_lock", "frank", map[string]interface{}{"lock_time": 5})
	suite.Require().NoError(err)
	suite.Assert().Equal(gocbcore.Cas(102), res.Cas)

	lockOpts := fake.lastCall("GetAndLock").(gocbcore.GetAndLockOptions)
	suite.Assert().Equal(uint32(5), lockOpts.LockTime)

	_, err = conn.DoMap(Target{}, "get_and_lock", "frank", map[string]interface{}{"lock_time": "5"})
	suite.Assert().ErrorIs(err, ErrInvalidArgument)
	suite.Assert().Equal(1, fake.CallCount("GetAndLock"))
}
