package emit

import "go.uber.org/zap"

// ZapEmitter writes events as structured log entries. Events whose Meta
// carries an "error" field log at warn level, everything else at info.
type ZapEmitter struct {
	log *zap.Logger
}

// NewZapEmitter wraps a zap logger. A nil logger yields a no-op emitter.
func NewZapEmitter(log *zap.Logger) *ZapEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapEmitter{log: log}
}

// Emit implements Emitter.
func (z *ZapEmitter) Emit(ev Event) {
	fields := make([]zap.Field, 0, 3+len(ev.Meta))
	fields = append(fields, zap.String("run_id", ev.RunID))
	if ev.Step > 0 {
		fields = append(fields, zap.Int("step", ev.Step))
	}
	if ev.NodeID != "" {
		fields = append(fields, zap.String("node_id", ev.NodeID))
	}
	for k, v := range ev.Meta {
		fields = append(fields, zap.Any(k, v))
	}
	if _, failed := ev.Meta["error"]; failed {
		z.log.Warn(ev.Msg, fields...)
		return
	}
	z.log.Info(ev.Msg, fields...)
}
