package so

import (
	"context"
	"fmt"
	"net/http"
)

// GridNode is one node in the deployment as reported by connect/grid.
type GridNode struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Role            string  `json:"role"`
	Address         string  `json:"address"`
	Description     string  `json:"description"`
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	ConnectionState string  `json:"connectionStatus"`
	UpdateTime      string  `json:"updateTime"`
	OsNeedsRestart  int     `json:"osNeedsRestart"`
	OsUptimeSeconds int64   `json:"osUptimeSeconds"`
	CPUUsedPct      float64 `json:"cpuUsedPct"`
	MemoryUsedPct   float64 `json:"memoryUsedPct"`
	DiskUsedRootPct float64 `json:"diskUsedRootPct"`
}

// GridMember is a node's membership record, addressed as "name_role".
type GridMember struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (c *Client) GridNodes(ctx context.Context) ([]GridNode, error) {
	var out []GridNode
	if err := c.getJSON(ctx, "connect/grid", nil, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("grid nodes: %w", err)
	}
	return out, nil
}

func (c *Client) GridMembers(ctx context.Context) ([]GridMember, error) {
	var out []GridMember
	if err := c.getJSON(ctx, "connect/gridmembers", nil, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("grid members: %w", err)
	}
	return out, nil
}

// RestartGridMember asks the manager to reboot the member node.
func (c *Client) RestartGridMember(ctx context.Context, memberID string) error {
	if err := c.sendJSON(ctx, http.MethodPost, "connect/gridmembers/"+memberID+"/restart", nil, nil, defaultTimeout); err != nil {
		return fmt.Errorf("restart grid member %s: %w", memberID, err)
	}
	return nil
}
