package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPFetcher 走查询接口回源的 Fetcher 实现
type HTTPFetcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string, token string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// envelope 服务端统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *HTTPFetcher) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.Token)

	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.Code != 200 {
		return fmt.Errorf("api error %d: %s", env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (f *HTTPFetcher) FetchNotifications(ctx context.Context, page int, pageSize int) ([]Notification, int64, error) {
	var data struct {
		Items []Notification `json:"items"`
		Total int64          `json:"total"`
	}
	err := f.post(ctx, "/notification/getNotificationList", map[string]interface{}{
		"page":     page,
		"pageSize": pageSize,
	}, &data)
	if err != nil {
		return nil, 0, err
	}
	return data.Items, data.Total, nil
}

func (f *HTTPFetcher) FetchCounts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := f.post(ctx, "/notification/getNotificationCounts", map[string]interface{}{}, &counts)
	return counts, err
}

func (f *HTTPFetcher) MarkAsRead(ctx context.Context, id int64) error {
	return f.post(ctx, "/notification/markAsRead", map[string]interface{}{
		"notificationId": id,
	}, nil)
}

func (f *HTTPFetcher) MarkAllAsRead(ctx context.Context) error {
	return f.post(ctx, "/notification/markAllAsRead", map[string]interface{}{}, nil)
}
