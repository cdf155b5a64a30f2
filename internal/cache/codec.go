package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// encodeEntry 以 "key\n" + HTTP/1.1 报文形式序列化条目，便于直接用 http.ReadResponse 还原。
func encodeEntry(w io.Writer, key string, snap *Snapshot) error {
	if strings.ContainsAny(key, "\r\n") {
		return fmt.Errorf("cache key contains line break: %q", key)
	}
	if _, err := io.WriteString(w, key+"\n"); err != nil {
		return err
	}
	return snap.Response().Write(w)
}

// decodeEntry 读取 encodeEntry 写出的条目。
func decodeEntry(r io.Reader) (string, *Snapshot, error) {
	br := bufio.NewReader(r)
	key, err := readKey(br)
	if err != nil {
		return "", nil, err
	}
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return "", nil, fmt.Errorf("decode cached response: %w", err)
	}
	snap, err := ReadSnapshot(resp)
	if err != nil {
		return "", nil, err
	}
	return key, snap, nil
}

func readKey(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("decode cached response: truncated key line")
		}
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}
