package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Timestamp 寬鬆解析的時間戳
// 後端的時間格式不固定（RFC3339、無時區 ISO、epoch 數字），客戶端只用於顯示，
// 因此解析失敗時保留原文，不影響整個狀態的解碼
type Timestamp struct {
	Time time.Time // 解析成功時有值，無時區的輸入視為 UTC
	Raw  string    // 後端原始值（字串內容或數字文本）
}

// 依序嘗試的版面
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// epoch 數值大於此值時視為毫秒
const epochMillisThreshold = 1e12

// UnmarshalJSON 接受字串或數字，永不回傳錯誤
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*t = Timestamp{}
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		t.Raw = s
		t.Time = parseTimestamp(strings.TrimSpace(s))
		return nil
	}

	t.Raw = string(trimmed)
	if f, err := strconv.ParseFloat(t.Raw, 64); err == nil {
		t.Time = fromEpoch(f)
	}
	return nil
}

// MarshalJSON 解析成功時輸出 RFC3339，否則原樣輸出原文字串
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Time.IsZero() {
		return json.Marshal(t.Time.Format(time.RFC3339Nano))
	}
	return json.Marshal(t.Raw)
}

// IsZero 判斷是否沒有任何內容
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero() && t.Raw == ""
}

// String 解析成功時按輸入時區格式化，否則回傳原文
func (t Timestamp) String() string {
	if !t.Time.IsZero() {
		return t.Time.Format("2006-01-02 15:04:05")
	}
	return t.Raw
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return parsed
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}
}

func fromEpoch(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}
