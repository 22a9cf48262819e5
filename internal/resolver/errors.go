package resolver

import (
	"github.com/hanpama/socialgraph/internal/apperr"
	"github.com/hanpama/socialgraph/internal/executor"
)

// PresentError reports err with its classification under extensions.code.
func PresentError(err error, path executor.Path) executor.GraphQLError {
	return executor.GraphQLError{
		Message:    err.Error(),
		Path:       path,
		Extensions: map[string]any{"code": apperr.Code(err)},
	}
}
