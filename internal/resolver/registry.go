package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrVersionMissing 表示上游响应成功但不包含可用的 version 字段。
var ErrVersionMissing = errors.New("upstream response missing version field")

// StatusError 表示上游返回了非成功状态码。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// maxMetadataBytes 限制上游元数据响应的读取量，registry 的 latest 文档通常远小于此。
const maxMetadataBytes = 1 << 20

// RegistryClient 负责向上游 registry 查询包的最新版本。
// 查询地址由模板生成，包名按原样代入，每次调用仅发起一次请求。
type RegistryClient struct {
	client   *http.Client
	template func(pkg string) string
}

// NewRegistryClient 构造上游查询客户端。template 将包名映射为完整查询 URL，
// 通常由 config.GlobalConfig.UpstreamURL 提供。
func NewRegistryClient(client *http.Client, template func(pkg string) string) *RegistryClient {
	return &RegistryClient{
		client:   client,
		template: template,
	}
}

// LatestVersion 查询包的最新版本号。返回的版本号保证非空；
// 传输失败、非成功状态码、响应体无法解析或缺少 version 字段均返回错误。
func (c *RegistryClient) LatestVersion(ctx context.Context, pkg string) (string, error) {
	target := c.template(pkg)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{StatusCode: resp.StatusCode}
	}

	var payload struct {
		Version string `json:"version"`
	}
	body := io.LimitReader(resp.Body, maxMetadataBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode upstream response: %w", err)
	}

	version := strings.TrimSpace(payload.Version)
	if version == "" {
		return "", ErrVersionMissing
	}
	return version, nil
}
