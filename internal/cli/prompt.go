package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"

	"github.com/fpang/catalog-post-automation/internal/approval"
)

// Confirm asks a yes/no question on out and reads the answer from in.
// Anything but an explicit yes is a no.
func Confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read input, assuming no")
		return false
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes", "j", "ja":
		return true
	default:
		return false
	}
}

// ApprovalLabel is the checklist line shown for a record.
func ApprovalLabel(r approval.Record) string {
	return fmt.Sprintf("%s | %s | %s", r.ProductID, Ellipsize(r.Title, 40), Ellipsize(r.Caption, 80))
}

// SelectForApproval shows a desktop checklist of pending records and
// returns the ids the reviewer ticked. Cancelling selects nothing.
func SelectForApproval(pending []approval.Record) ([]string, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	byLabel := make(map[string]string, len(pending))
	labels := make([]string, 0, len(pending))
	for _, r := range pending {
		label := ApprovalLabel(r)
		byLabel[label] = r.ProductID
		labels = append(labels, label)
	}

	selected, err := zenity.ListMultiple("Select the posts to approve", labels,
		zenity.Title("Pending Instagram posts"),
		zenity.CheckList(),
		zenity.Width(900),
		zenity.Height(500),
	)
	if errors.Is(err, zenity.ErrCanceled) {
		log.Info().Msg("Approval dialog cancelled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("approval dialog: %w", err)
	}

	ids := make([]string, 0, len(selected))
	for _, label := range selected {
		if id, ok := byLabel[label]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
