package so

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Job statuses as reported by the manager.
const (
	JobStatusPending  = 0
	JobStatusComplete = 1
)

// JobFilter scopes a PCAP job to a flow and time window. Times use
// "2006-01-02T15:04:05Z".
type JobFilter struct {
	ImportID  string `json:"importId,omitempty"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
	SrcIP     string `json:"srcIp,omitempty"`
	SrcPort   int    `json:"srcPort,omitempty"`
	DstIP     string `json:"dstIp,omitempty"`
	DstPort   int    `json:"dstPort,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
}

// Job is a sensor-side capture extraction task.
type Job struct {
	ID       int        `json:"id"`
	Type     string     `json:"type"`
	Status   int        `json:"status"`
	NodeID   string     `json:"nodeId"`
	SensorID string     `json:"sensorId"`
	Filter   *JobFilter `json:"filter,omitempty"`
}

// CreatePCAPJob schedules a capture extraction on the sensor named by
// nodeID (the alert's observer.name).
func (c *Client) CreatePCAPJob(ctx context.Context, nodeID string, filter JobFilter) (*Job, error) {
	req := map[string]any{
		"type":     "pcap",
		"nodeId":   nodeID,
		"sensorId": nodeID,
		"filter":   filter,
	}
	var out Job
	if err := c.sendJSON(ctx, http.MethodPost, "connect/job", req, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("create pcap job: %w", err)
	}
	return &out, nil
}

func (c *Client) GetJob(ctx context.Context, id int) (*Job, error) {
	var out Job
	if err := c.getJSON(ctx, "connect/job/"+strconv.Itoa(id), nil, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return &out, nil
}

// DownloadPCAP streams the finished job's capture file.
func (c *Client) DownloadPCAP(ctx context.Context, jobID int) ([]byte, error) {
	q := url.Values{}
	q.Set("ext", "pcap")
	q.Set("unwrap", "true")
	data, err := c.getBytes(ctx, "connect/stream/"+strconv.Itoa(jobID), q, detectionTimeout)
	if err != nil {
		return nil, fmt.Errorf("download pcap for job %d: %w", jobID, err)
	}
	return data, nil
}

// LookupPCAP asks the manager to locate and stream a capture directly
// from an event's Elasticsearch ID or Zeek community ID, with no
// explicit job handling on the caller's side.
func (c *Client) LookupPCAP(ctx context.Context, eventTime, esID, ncID string) ([]byte, error) {
	q := url.Values{}
	q.Set("time", eventTime)
	if esID != "" {
		q.Set("esid", esID)
	}
	if ncID != "" {
		q.Set("ncid", ncID)
	}
	data, err := c.getBytes(ctx, "connect/joblookup", q, detectionTimeout)
	if err != nil {
		return nil, fmt.Errorf("pcap lookup: %w", err)
	}
	return data, nil
}
