package model

import "time"

const EnvelopeVersion = "v1"

// TimestampLayout is the millisecond UTC form used in every tool payload.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int               `json:"code"`
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	ChainID   string    `json:"chain_id,omitempty"`
	Partial   bool      `json:"partial"`
}

// Timestamp renders t the way tool payloads carry it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
