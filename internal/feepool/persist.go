package feepool

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gxchain/gxcd/pkg/types"
)

// Save writes the pool's full state — header totals plus both logs — as
// pipe-delimited lines, one record per line, tagged by record kind. This
// mirrors the flat line-delimited record style the rest of the ledger uses
// for bulk import/export (see internal/registry's Export).
func Save(w io.Writer, s *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bw := bufio.NewWriter(w)
	header := strings.Join([]string{
		"STATE",
		s.Address.Hex(),
		fmt.Sprintf("%d", s.Balance),
		fmt.Sprintf("%d", s.TotalFunded),
		fmt.Sprintf("%d", s.TotalSpent),
		fmt.Sprintf("%d", s.TotalReversals),
		fmt.Sprintf("%d", s.MinWarn),
		fmt.Sprintf("%d", s.MinFee),
	}, "|")
	if _, err := fmt.Fprintln(bw, header); err != nil {
		return err
	}

	for _, f := range s.FundingLog {
		line := strings.Join([]string{
			"FUND",
			f.Source,
			f.Ref.String(),
			fmt.Sprintf("%d", f.Amount),
			escapeField(f.Note),
		}, "|")
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}

	for _, fe := range s.FeeLog {
		line := strings.Join([]string{
			"FEE",
			fe.ReversalTxHash.String(),
			fmt.Sprintf("%d", fe.Amount),
			fe.Victim.Hex(),
			escapeField(fe.Admin),
		}, "|")
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load rebuilds a pool State from the format Save writes.
func Load(r io.Reader) (*State, error) {
	scanner := bufio.NewScanner(r)
	var s *State

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Split on unescaped '|' only; escape sequences are kept intact here
		// and decoded by unescapeField on the free-text fields.
		var fields []string
		start := 0
		for i := 0; i < len(line); i++ {
			if line[i] == '\\' {
				i++
			} else if line[i] == '|' {
				fields = append(fields, line[start:i])
				start = i + 1
			}
		}
		fields = append(fields, line[start:])
		switch fields[0] {
		case "STATE":
			if len(fields) != 8 {
				return nil, fmt.Errorf("malformed feepool STATE line: %q", line)
			}
			addr, err := types.HexToAddress(fields[1])
			if err != nil {
				return nil, fmt.Errorf("malformed feepool address %q: %w", fields[1], err)
			}
			s = &State{Address: addr}
			if _, err := fmt.Sscanf(fields[2], "%d", &s.Balance); err != nil {
				return nil, fmt.Errorf("malformed balance: %w", err)
			}
			if _, err := fmt.Sscanf(fields[3], "%d", &s.TotalFunded); err != nil {
				return nil, fmt.Errorf("malformed totalFunded: %w", err)
			}
			if _, err := fmt.Sscanf(fields[4], "%d", &s.TotalSpent); err != nil {
				return nil, fmt.Errorf("malformed totalSpent: %w", err)
			}
			if _, err := fmt.Sscanf(fields[5], "%d", &s.TotalReversals); err != nil {
				return nil, fmt.Errorf("malformed totalReversals: %w", err)
			}
			if _, err := fmt.Sscanf(fields[6], "%d", &s.MinWarn); err != nil {
				return nil, fmt.Errorf("malformed minWarn: %w", err)
			}
			if _, err := fmt.Sscanf(fields[7], "%d", &s.MinFee); err != nil {
				return nil, fmt.Errorf("malformed minFee: %w", err)
			}
		case "FUND":
			if s == nil {
				return nil, fmt.Errorf("FUND record before STATE header")
			}
			if len(fields) != 5 {
				return nil, fmt.Errorf("malformed feepool FUND line: %q", line)
			}
			ref, err := types.HexToHash(fields[2])
			if err != nil {
				return nil, fmt.Errorf("malformed FUND ref %q: %w", fields[2], err)
			}
			var amount uint64
			if _, err := fmt.Sscanf(fields[3], "%d", &amount); err != nil {
				return nil, fmt.Errorf("malformed FUND amount: %w", err)
			}
			s.FundingLog = append(s.FundingLog, FundingEntry{
				Source: fields[1],
				Ref:    ref,
				Amount: amount,
				Note:   unescapeField(fields[4]),
			})
		case "FEE":
			if s == nil {
				return nil, fmt.Errorf("FEE record before STATE header")
			}
			if len(fields) != 5 {
				return nil, fmt.Errorf("malformed feepool FEE line: %q", line)
			}
			rtx, err := types.HexToHash(fields[1])
			if err != nil {
				return nil, fmt.Errorf("malformed FEE tx hash %q: %w", fields[1], err)
			}
			var amount uint64
			if _, err := fmt.Sscanf(fields[2], "%d", &amount); err != nil {
				return nil, fmt.Errorf("malformed FEE amount: %w", err)
			}
			victim, err := types.HexToAddress(fields[3])
			if err != nil {
				return nil, fmt.Errorf("malformed FEE victim %q: %w", fields[3], err)
			}
			s.FeeLog = append(s.FeeLog, FeeEntry{
				ReversalTxHash: rtx,
				Amount:         amount,
				Victim:         victim,
				Admin:          unescapeField(fields[4]),
			})
		default:
			return nil, fmt.Errorf("unknown feepool record kind %q", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("feepool: no STATE header found")
	}
	return s, nil
}

func escapeField(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeField(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			switch r {
			case 'n':
				b.WriteRune('\n')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
