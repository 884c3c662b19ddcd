// Package logging builds the process logger and carries request and job
// attributes through context.
//
// Example usage:
//
//	import "social-relay/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    slog.SetDefault(logger)
//	}
//
//	func handle(ctx context.Context, job *entity.Job) {
//	    logger := logging.WithJob(logging.WithRequestID(ctx, slog.Default()), job)
//	    logger.Info("publishing")
//	}
package logging
