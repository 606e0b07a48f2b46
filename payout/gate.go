package payout

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Status tracks a payout transaction through its lifecycle.
type Status string

const (
	StatusDrafted   Status = "drafted"
	StatusSigned    Status = "signed"
	StatusConfirmed Status = "confirmed"
	StatusBroadcast Status = "broadcast"
	StatusCancelled Status = "cancelled"
)

// Summary describes a fully signed transaction for operator review
// before broadcast.
type Summary struct {
	FundingAddress string
	NumInputs      int
	InputTxIDs     []string
	TotalPayout    int64
	Fee            int64
	FeeRate        int64
	Change         int64
	ChangeAddress  string
	VirtualSize    int64
	TxID           string
	Hex            string
}

// Render writes the human-readable summary to w.
func (s Summary) Render(w io.Writer) {
	fmt.Fprintf(w, "Funding address: %s\n", s.FundingAddress)
	fmt.Fprintf(w, "Inputs:          %d\n", s.NumInputs)
	for _, txid := range s.InputTxIDs {
		fmt.Fprintf(w, "  %s\n", txid)
	}
	fmt.Fprintf(w, "Total payout:    %d sats\n", s.TotalPayout)
	fmt.Fprintf(w, "Fee:             %d sats (%d sat/vB, %d vB)\n", s.Fee, s.FeeRate, s.VirtualSize)
	if s.Change > 0 {
		fmt.Fprintf(w, "Change:          %d sats -> %s\n", s.Change, s.ChangeAddress)
	} else {
		fmt.Fprintf(w, "Change:          none\n")
	}
	fmt.Fprintf(w, "TxID:            %s\n", s.TxID)
}

func (s Summary) String() string {
	var b strings.Builder
	s.Render(&b)
	return b.String()
}

// ConfirmFunc decides whether a signed transaction may be broadcast.
type ConfirmFunc func(Summary) (bool, error)

// StdinConfirm renders the summary to out and reads one line from in.
// Only "y" or "Y" confirms; anything else, including EOF, cancels.
func StdinConfirm(in io.Reader, out io.Writer) ConfirmFunc {
	return func(s Summary) (bool, error) {
		s.Render(out)
		fmt.Fprint(out, "Broadcast this transaction? (y/N): ")

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		return strings.EqualFold(strings.TrimSpace(line), "y"), nil
	}
}

// AlwaysConfirm approves without prompting, for --yes runs.
func AlwaysConfirm(Summary) (bool, error) {
	return true, nil
}
