package gocbbridge

import (
	"testing"
	"time"

	"github.com/couchbase/gocbcore/v10/memd"
)

func (suite *UnitTestSuite) TestTracerWrapperSemanticConventions() {
	suite.T().Run("OnlyLegacyEmittedByDefault", func(t *testing.T) {
		tracer := newTestTracer()
		tw := newTracerWrapper(tracer, nil)
		suite.Require().True(tw.includeLegacyConventions)
		suite.Require().False(tw.includeStableConventions)

		span := tw.StartSpan(nil, "test-span")

		suite.Require().True(span.includeLegacyConventions)
		suite.Require().False(span.includeStableConventions)

		span.SetNamespace("default", "app", "users")
		span.End()

		s := tracer.Spans()[0]
		suite.Assert().Equal("default", s.Tag("db.name"))
		suite.Assert().Equal("app", s.Tag("db.couchbase.scope"))
		suite.Assert().Equal("users", s.Tag("db.couchbase.collection"))
		suite.Assert().Nil(s.Tag("db.namespace"))
		suite.Assert().Equal(1, s.Finished())
	})

	suite.T().Run("DatabaseOptInEmitsStableOnly", func(t *testing.T) {
		tracer := newTestTracer()
		tw := newTracerWrapper(tracer, []ObservabilitySemanticConvention{
			ObservabilitySemanticConventionDatabase,
		})
		suite.Require().False(tw.includeLegacyConventions)
		suite.Require().True(tw.includeStableConventions)

		span := tw.StartSpan(nil, "test-span")

		suite.Require().False(span.includeLegacyConventions)
		suite.Require().True(span.includeStableConventions)

		span.SetNamespace("default", "", "")
		span.End()

		s := tracer.Spans()[0]
		suite.Assert().Nil(s.Tag("db.name"))
		suite.Assert().Equal("default", s.Tag("db.namespace"))
		suite.Assert().Nil(s.Tag("couchbase.scope.name"))
	})

	suite.T().Run("DatabaseDupOptInEmitsBoth", func(t *testing.T) {
		tracer := newTestTracer()
		tw := newTracerWrapper(tracer, []ObservabilitySemanticConvention{
			ObservabilitySemanticConventionDatabaseDup,
		})
		suite.Require().True(tw.includeLegacyConventions)
		suite.Require().True(tw.includeStableConventions)

		span := tw.StartSpan(nil, "test-span")

		suite.Require().True(span.includeLegacyConventions)
		suite.Require().True(span.includeStableConventions)

		span.SetOperationName("get")
		span.SetErrorClass(ErrorClassInvalidArgument)
		span.End()

		s := tracer.Spans()[0]
		suite.Assert().Equal("get", s.Tag("db.operation"))
		suite.Assert().Equal("get", s.Tag("db.operation.name"))
		suite.Assert().Equal("invalid_argument", s.Tag("db.couchbase.error_class"))
		suite.Assert().Equal("invalid_argument", s.Tag("error.type"))
	})

	suite.T().Run("DatabaseDupTakesPrecedence", func(t *testing.T) {
		tracer := newTestTracer()
		tw := newTracerWrapper(tracer, []ObservabilitySemanticConvention{
			ObservabilitySemanticConventionDatabase,
			ObservabilitySemanticConventionDatabaseDup,
		})
		suite.Require().True(tw.includeLegacyConventions)
		suite.Require().True(tw.includeStableConventions)

		span := tw.StartSpan(nil, "test-span")

		span.SetSystemName()
		span.SetService("kv")
		span.End()

		s := tracer.Spans()[0]
		suite.Assert().Equal("couchbase", s.Tag("db.system"))
		suite.Assert().Equal("couchbase", s.Tag("db.system.name"))
		suite.Assert().Equal("kv", s.Tag("db.couchbase.service"))
		suite.Assert().Equal("kv", s.Tag("couchbase.service"))
	})
}

func (suite *UnitTestSuite) TestSpanDurability() {
	tracer := newTestTracer()
	tw := newTracerWrapper(tracer, nil)

	span := tw.StartSpan(nil, "upsert")
	span.SetDurability(resolvedDurability{level: memd.DurabilityLevelMajority})
	span.End()
	suite.Assert().Equal("majority", tracer.Spans()[0].Tag("db.couchbase.durability"))

	span = tw.StartSpan(nil, "upsert")
	span.SetDurability(resolvedDurability{legacy: &legacyDurability{persistTo: 1}})
	span.End()
	suite.Assert().Equal("legacy", tracer.Spans()[1].Tag("db.couchbase.durability"))
}

func (suite *UnitTestSuite) TestNoopTracer() {
	tw := newTracerWrapper(nil, nil)

	span := tw.StartSpan(nil, "get")
	span.SetSystemName()
	span.span.AddEvent("dispatch", time.Time{})
	span.End()
	suite.Assert().Equal(defaultNoopSpanContext, span.Context())
}
