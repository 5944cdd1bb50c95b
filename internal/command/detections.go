package command

import (
	"context"
	"fmt"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// Detections manages rules: enable, disable, summary and suppress.
func (h *Handlers) Detections(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	action, publicID := inv.Args[0], inv.Args[1]

	switch action {
	case "enable", "disable":
		_, err := h.siem.SetDetectionEnabled(ctx, publicID, action == "enable")
		if err != nil {
			return domain.Result{}, err
		}
		return domain.OK(fmt.Sprintf("✅ Successfully %sd detection rule %s", action, publicID)), nil

	case "summary":
		d, err := h.siem.GetDetection(ctx, publicID)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.CodeBlock(d.Summary()), nil

	case "suppress":
		if len(inv.Args) < 4 {
			return domain.Result{
				Kind: domain.ResultInvalid,
				Text: "Invalid arguments. Usage: !detections suppress <publicid> <by_src|by_dst|by_either> <ip|cidr>",
			}, nil
		}
		track, ip := inv.Args[2], inv.Args[3]
		_, err := h.siem.SuppressDetection(ctx, publicID, track, ip)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.OK(fmt.Sprintf("✅ Successfully suppressed detection rule %s for %s (%s)", publicID, ip, track)), nil
	}

	// validDetectionAction keeps us from reaching here
	return domain.Result{
		Kind: domain.ResultInvalid,
		Text: "Invalid arguments. Usage: !detections <enable|disable|summary|suppress> <publicid>",
	}, nil
}
