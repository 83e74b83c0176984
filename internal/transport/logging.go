// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"

	applog "streampump/internal/log"

	"go.uber.org/zap"
)

// LoggingTransport writes every payload to the debug log. Payloads that
// implement fmt.Stringer are logged as their summary, anything else as JSON.
type LoggingTransport struct {
	log *zap.SugaredLogger
}

func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{log: applog.Named("transport")}
}

// Send never fails.
func (lt *LoggingTransport) Send(data any) error {
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	if s, ok := data.(fmt.Stringer); ok {
		lt.log.Debugw(s.String(), "type", fmt.Sprintf("%T", data))
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		lt.log.Debugw("unmarshalable payload", "type", fmt.Sprintf("%T", data), "error", err)
		return nil
	}
	lt.log.Debugw(string(payload), "type", fmt.Sprintf("%T", data))
	return nil
}

func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
