package gate

import "github.com/rs/zerolog/log"

// WarnFunc receives human-readable reports of anomalous but survivable
// conditions hit while queueing or draining. No warning is ever fatal to the
// queue; the gate only reports and carries on as best it can.
type WarnFunc func(msg string)

// Silence is a warning sink that discards everything. Pass it to SubmitWarn
// to suppress warnings for a submission.
func Silence(string) {}

// The default sink, writes through the global zerolog logger.
func logSink(msg string) {
	log.Warn().Msg(msg)
}
