package gocbbridge

// Outcome is the single result of one operation: either a success payload or a failure
// error context, never both.
type Outcome struct {
	result *Result
	err    *OperationError
}

func successOutcome(res *Result) Outcome {
	if res == nil {
		panic("success outcome requires a result")
	}
	return Outcome{result: res}
}

func failureOutcome(err *OperationError) Outcome {
	if err == nil {
		panic("failure outcome requires an error")
	}
	return Outcome{err: err}
}

// Succeeded reports whether the outcome carries a result.
func (o Outcome) Succeeded() bool {
	return o.result != nil
}

// Result returns the success payload, or nil for a failure.
func (o Outcome) Result() *Result {
	return o.result
}

// Err returns the failure as an error, or nil for a success.
func (o Outcome) Err() error {
	if o.err == nil {
		return nil
	}
	return o.err
}

// OperationError returns the failure's error context, or nil for a success.
func (o Outcome) OperationError() *OperationError {
	return o.err
}

// Unpack returns the outcome in the usual Go result/error form.
func (o Outcome) Unpack() (*Result, error) {
	return o.result, o.Err()
}
