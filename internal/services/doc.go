// Package services implements the business logic of the calibration engine.
// It sits between the HTTP handlers and the stores, keeping the rank model
// mathematics in internal/index free of orchestration concerns.
//
// # Services
//
//   - CalibrationService runs recalibration cycles over the observation log
//     and publishes per-keyword parameters to the parameter store.
//   - EstimationService answers index estimates locally when a keyword is
//     calibrated and falls back to the oracle when it is not.
//   - CorrelationService rebuilds the feature significance table from
//     resolved activity entries.
//   - ActivityService records activity declarations and resolves them
//     against later observations.
//   - SimulationService projects rank movement forward from planned
//     activity and inverts the calibrated model for target ranks.
//
// # Common Pattern
//
// Services take their dependencies through constructors and hold a
// *slog.Logger tagged with the service name:
//
//	func NewEstimationService(params *store.ParameterStore, ...) *EstimationService {
//	    return &EstimationService{
//	        params: params,
//	        logger: logger.With(slog.String("service", "estimation")),
//	    }
//	}
//
// All blocking operations accept a context.Context and return wrapped
// errors that the transport layer maps to RFC 7807 problem responses.
package services
