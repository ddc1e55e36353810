// Package syslogparse extracts RFC3164-ish syslog fields from a log
// message, per spec §4.B. A message that does not match the priority
// envelope is returned unchanged with a nil fields map.
package syslogparse

import (
	"regexp"
	"strconv"

	"github.com/discourse/mobystash/pkg/value"
)

var envelopeRE = regexp.MustCompile(`^<(\d+)>(\w{3} [ 0-9]{2} [0-9:]{8}) (.*)$`)

// content patterns, tried in order, per spec §4.B.
var (
	hostProgramPidRE = regexp.MustCompile(`^([a-zA-Z0-9._-]*[^:]) (\S+?)(\[(\d+)\])?: (.*)$`)
	hostOnlyRE       = regexp.MustCompile(`^([a-zA-Z0-9._-]+) (\S+[^:] .*)$`)
	programPidRE     = regexp.MustCompile(`^(\S+?)(\[(\d+)\])?: (.*)$`)
)

var severityNames = [8]string{
	"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
}

var facilityNames = [24]string{
	"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
	"uucp", "cron", "authpriv", "ftp",
	"reserved12", "reserved13", "reserved14", "reserved15",
	"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
}

// Parse attempts to extract syslog fields from message. When message does
// not match the `<pri>timestamp ` envelope, it returns message unchanged
// and a nil fields map.
func Parse(message string) (string, *value.Map) {
	m := envelopeRE.FindStringSubmatch(message)
	if m == nil {
		return message, nil
	}

	pri, err := strconv.Atoi(m[1])
	if err != nil {
		return message, nil
	}
	timestamp := m[2]
	content := m[3]

	severity := pri % 8
	facility := pri / 8

	fields := value.NewMap()
	fields.Set("timestamp", timestamp)
	fields.Set("severity_id", severity)
	fields.Set("severity_name", severityNames[severity])
	fields.Set("facility_id", facility)
	if facility >= 0 && facility < len(facilityNames) {
		fields.Set("facility_name", facilityNames[facility])
	}

	host, program, pid, msg := parseContent(content)
	if host != "" {
		fields.Set("hostname", host)
	}
	if program != "" {
		fields.Set("program", program)
	}
	if pid != 0 {
		fields.Set("pid", pid)
	}

	return msg, fields
}

// parseContent matches content against the three patterns of spec §4.B in
// order, falling through to "no host, no program, no pid" when none match.
func parseContent(content string) (host, program string, pid int, message string) {
	if m := hostProgramPidRE.FindStringSubmatch(content); m != nil {
		host = m[1]
		program = m[2]
		if m[4] != "" {
			pid, _ = strconv.Atoi(m[4])
		}
		message = m[5]
		return
	}
	if m := hostOnlyRE.FindStringSubmatch(content); m != nil {
		host = m[1]
		message = m[2]
		return
	}
	if m := programPidRE.FindStringSubmatch(content); m != nil {
		program = m[1]
		if m[3] != "" {
			pid, _ = strconv.Atoi(m[3])
		}
		message = m[4]
		return
	}
	message = content
	return
}
