package export

import (
	"fmt"
	"strings"
)

// Mode 三种互斥的导出模式
type Mode int

const (
	ModeRealtime Mode = iota
	ModeBatch
	ModeHistorical
)

func (m Mode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime"
	case ModeBatch:
		return "batch"
	case ModeHistorical:
		return "historical"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode 接受 realtime / real-time / batch / historical，也接受 0/1/2
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime", "real-time", "real_time", "0", "":
		return ModeRealtime, nil
	case "batch", "1":
		return ModeBatch, nil
	case "historical", "history", "2":
		return ModeHistorical, nil
	}
	return ModeRealtime, fmt.Errorf("unknown export mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Phase 请求生命周期：Idle -> Pending -> Completed -> Idle
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseCompleted
)

var phaseNames = []string{"idle", "pending", "completed"}

func (p Phase) String() string {
	if int(p) >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}
