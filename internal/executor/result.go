package executor

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// ExecutionResult represents the result of executing a GraphQL query
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// ErrorPresenter converts a resolver error into the reported error. It
// receives the message and path the executor would use.
type ErrorPresenter func(err error, path Path) GraphQLError

func defaultPresenter(err error, path Path) GraphQLError {
	return GraphQLError{Message: err.Error(), Path: path}
}
