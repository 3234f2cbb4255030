package oaipoll

import "go.uber.org/zap"

// Decision tells the harvest loop what to do with a response.
type Decision int

const (
	// Proceed means records can be dispatched.
	Proceed Decision = iota
	// Stop ends the cycle for this invocation.
	Stop
)

func (d Decision) String() string {
	if d == Stop {
		return "stop"
	}
	return "proceed"
}

// Classify looks at the errors of a response. Any error stops the cycle, but
// only errors, that are not informational, get logged as failures.
func Classify(log *zap.Logger, endpoint string, errs []OAIError) Decision {
	if len(errs) == 0 {
		return Proceed
	}
	if log == nil {
		log = zap.NewNop()
	}
	for _, e := range errs {
		if e.Code.Informational() {
			log.Info("no data",
				zap.String("code", string(e.Code)),
				zap.String("message", e.Message))
			continue
		}
		log.Error("error getting records",
			zap.String("endpoint", endpoint),
			zap.String("code", string(e.Code)),
			zap.String("message", e.Message))
	}
	return Stop
}

// Operational returns the errors, that are not informational.
func Operational(errs []OAIError) ProtocolErrors {
	var result ProtocolErrors
	for _, e := range errs {
		if !e.Code.Informational() {
			result = append(result, e)
		}
	}
	return result
}
