package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// execute dispatches to the transport-specific executor for d, returning the
// raw textual result.
func execute(ctx context.Context, d *Descriptor, argsJSON []byte) (string, error) {
	switch d.Transport {
	case TransportSubprocess:
		return execSubprocess(ctx, d, argsJSON)
	case TransportHTTP:
		return execHTTP(ctx, d, argsJSON)
	case TransportTCP:
		return execTCP(ctx, d, argsJSON)
	default:
		return "", fmt.Errorf("gateway: unknown transport for tool %q", d.Name)
	}
}

func execSubprocess(ctx context.Context, d *Descriptor, argsJSON []byte) (string, error) {
	cmd := exec.CommandContext(ctx, d.Executable, d.Args...)
	cmd.Stdin = bytes.NewReader(argsJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("subprocess error: %s", strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("gateway: spawn %s: %w", d.Executable, err)
	}
	return stdout.String(), nil
}

const maxHTTPResponseBytes = 1 << 20 // 1MB

// execHTTP sends arguments untransformed; no jq-style request/response
// reshaping is applied.
func execHTTP(ctx context.Context, d *Descriptor, argsJSON []byte) (string, error) {
	method := strings.ToUpper(d.Method)
	endpoint := expandEnvVars(d.URL)

	var body io.Reader
	if method != http.MethodGet {
		body = bytes.NewReader(argsJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("gateway: build http request: %w", err)
	}

	if method == http.MethodGet {
		query, err := queryFromArgs(argsJSON)
		if err != nil {
			return "", fmt.Errorf("gateway: build query from arguments: %w", err)
		}
		if query != "" {
			if req.URL.RawQuery == "" {
				req.URL.RawQuery = query
			} else {
				req.URL.RawQuery += "&" + query
			}
		}
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.Headers {
		req.Header.Set(k, expandEnvVars(v))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxHTTPResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("gateway: read http response: %w", err)
	}
	if len(data) > maxHTTPResponseBytes {
		return "", fmt.Errorf("gateway: http response exceeds %d bytes", maxHTTPResponseBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, string(data))
	}
	return string(data), nil
}

// queryFromArgs flattens a JSON object of tool arguments into a URL query
// string, for GET tools where arguments can't ride in the request body.
func queryFromArgs(argsJSON []byte) (string, error) {
	if len(argsJSON) == 0 {
		return "", nil
	}
	var args map[string]any
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", err
	}
	values := url.Values{}
	for k, v := range args {
		values.Set(k, fmt.Sprint(v))
	}
	return values.Encode(), nil
}

func execTCP(ctx context.Context, d *Descriptor, argsJSON []byte) (string, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return "", fmt.Errorf("TCP connection to %s failed: %w", d.Address, err)
	}
	defer conn.Close()

	// ctx carries the call's timeout; a blocking Read below won't otherwise
	// observe cancellation, so close the connection out from under it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	payload := append(append([]byte{}, argsJSON...), '\n')
	if _, err := conn.Write(payload); err != nil {
		return "", fmt.Errorf("TCP write failed: %w", err)
	}

	// Read until the first newline or until the peer closes the connection.
	var reply []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		reply = append(reply, buf[:n]...)
		if i := bytes.IndexByte(reply, '\n'); i >= 0 {
			return string(reply[:i]), nil
		}
		if err != nil {
			if len(reply) == 0 {
				return "", fmt.Errorf("TCP read failed: %w", err)
			}
			return string(reply), nil
		}
	}
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}
