package bpmn

import (
	"strconv"
	"strings"
)

// jobKeyUUIDLen is the canonical length of a hyphenated UUID string, used
// to split the instance id off the front of a job key without scanning for
// colons (service_task_id may itself contain colons — §6.3, §9).
const jobKeyUUIDLen = 36

// MakeJobKey formats the canonical, wire-stable job key (§6.3):
// "{instance_id}:{service_task_id}:{pc}:{loop_epoch}".
func MakeJobKey(instanceID, serviceTaskID string, pc Addr, loopEpoch uint32) string {
	var b strings.Builder
	b.WriteString(instanceID)
	b.WriteByte(':')
	b.WriteString(serviceTaskID)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(pc))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(uint64(loopEpoch), 10))
	return b.String()
}

// ParseJobKey inverts MakeJobKey. Parsing is right-anchored: split the two
// trailing numeric fields (epoch, then pc) off the right first, since
// service_task_id may itself contain colons; what remains on the left is
// "{instance_id}:{service_task_id}", split by taking the first
// jobKeyUUIDLen characters as the UUID and the remainder (minus its
// separating colon) as service_task_id.
//
// This module always round-trips loop_epoch (§8 property 7), unlike the
// original implementation's internal debug-only parser which discarded it
// (see SPEC_FULL.md §12.5) — spec.md's round-trip property governs here.
func ParseJobKey(key string) (instanceID, serviceTaskID string, pc Addr, loopEpoch uint32, err error) {
	lastColon := strings.LastIndexByte(key, ':')
	if lastColon < 0 {
		return "", "", 0, 0, ErrJobKeyParseError
	}
	epochStr := key[lastColon+1:]
	rest := key[:lastColon]

	secondLastColon := strings.LastIndexByte(rest, ':')
	if secondLastColon < 0 {
		return "", "", 0, 0, ErrJobKeyParseError
	}
	pcStr := rest[secondLastColon+1:]
	left := rest[:secondLastColon]

	if len(left) < jobKeyUUIDLen+1 {
		return "", "", 0, 0, ErrJobKeyParseError
	}
	if left[jobKeyUUIDLen] != ':' {
		return "", "", 0, 0, ErrJobKeyParseError
	}
	uuidPart := left[:jobKeyUUIDLen]
	taskPart := left[jobKeyUUIDLen+1:]
	if taskPart == "" {
		return "", "", 0, 0, ErrJobKeyParseError
	}

	pcVal, perr := strconv.Atoi(pcStr)
	if perr != nil || pcVal < 0 {
		return "", "", 0, 0, ErrJobKeyParseError
	}
	epochVal, eerr := strconv.ParseUint(epochStr, 10, 32)
	if eerr != nil {
		return "", "", 0, 0, ErrJobKeyParseError
	}

	return uuidPart, taskPart, pcVal, uint32(epochVal), nil
}
