package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// parserState tracks which section the scanner is currently inside, per
// Design Note 3: Outside / InGlobal / InTier(index).
type parserState int

const (
	stateOutside parserState = iota
	stateGlobal
	stateTier
)

// rawConfig is the line-scanner's output: GlobalConfig/TierConfig filled
// from whatever keys appeared, with no validation or defaulting applied yet.
type rawConfig struct {
	global GlobalConfig
	tiers  []TierConfig
}

// parse scans r line by line, tracking section state, and returns the raw
// (unvalidated) parse result. Malformed lines are logged and skipped rather
// than aborting the whole parse, matching the original parser's tolerance
// for one bad line not sinking the whole config.
func parse(r io.Reader, log *zap.Logger) (*rawConfig, error) {
	raw := &rawConfig{}
	state := stateOutside
	tierIdx := -1

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if section, ok := sectionHeader(line); ok {
			if strings.EqualFold(section, "Global") {
				state = stateGlobal
				continue
			}
			raw.tiers = append(raw.tiers, TierConfig{ID: section})
			tierIdx = len(raw.tiers) - 1
			state = stateTier
			continue
		}

		key, value, ok := keyValue(line)
		if !ok {
			log.Warn("config: ignoring unparseable line", zap.Int("line", lineNo), zap.String("text", line))
			continue
		}

		switch state {
		case stateOutside:
			log.Warn("config: key outside any section, ignoring",
				zap.Int("line", lineNo), zap.String("key", key))
		case stateGlobal:
			if err := applyGlobalKey(&raw.global, key, value); err != nil {
				log.Warn("config: bad global value, ignoring",
					zap.Int("line", lineNo), zap.String("key", key), zap.Error(err))
			}
		case stateTier:
			if err := applyTierKey(&raw.tiers[tierIdx], key, value); err != nil {
				log.Warn("config: bad tier value, ignoring",
					zap.Int("line", lineNo), zap.String("key", key), zap.Error(err))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning config: %w", err)
	}
	return raw, nil
}

// stripComment removes a trailing "# ..." comment, ignoring '#' inside
// nothing in particular — autotier's config has no quoting rules that would
// let a '#' appear legitimately inside a value.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func sectionHeader(line string) (string, bool) {
	if len(line) >= 2 && line[0] == '[' && line[len(line)-1] == ']' {
		return strings.TrimSpace(line[1 : len(line)-1]), true
	}
	return "", false
}

func keyValue(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

func applyGlobalKey(g *GlobalConfig, key, value string) error {
	switch strings.ToLower(key) {
	case "log level":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		g.LogLevel = set(LogLevel(n))
	case "tier period":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		g.TierPeriod = set(time.Duration(n) * time.Second)
	case "strict period":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		g.StrictPeriod = set(b)
	case "copy buffer size":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		g.CopyBufferSize = set(n)
	case "crawler threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		g.CrawlerThreads = set(n)
	case "run path":
		g.RunPath = set(value)
	case "log file":
		g.LogFile = set(value)
	case "control socket":
		g.ControlSocket = set(value)
	default:
		return fmt.Errorf("unknown global key %q", key)
	}
	return nil
}

func applyTierKey(t *TierConfig, key, value string) error {
	switch strings.ToLower(key) {
	case "path":
		t.Path = set(value)
	case "watermark":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		t.Watermark = set(n)
	default:
		return fmt.Errorf("unknown tier key %q", key)
	}
	return nil
}
