// Package types 定義了 ingestflow 系統中使用的核心領域模型
package types

import (
	"strings"
)

// MaxIdentifiers 單次提交允許的最大識別碼數量
const MaxIdentifiers = 100

// JobHandle 後端回傳的任務識別碼（ingestion_id），對客戶端而言是不透明字串
type JobHandle string

// IsBlank 判斷 handle 去除空白後是否為空
func (h JobHandle) IsBlank() bool {
	return strings.TrimSpace(string(h)) == ""
}

// JobState 任務與批次的狀態
type JobState string

// 定義任務狀態常數
const (
	StateNotStarted JobState = "NOT_STARTED" // 尚未開始：後端已接受但尚未觸發
	StateTriggered  JobState = "TRIGGERED"   // 已觸發：處理中
	StateCompleted  JobState = "COMPLETED"   // 已完成
)

// Priority 提交優先級，客戶端不解讀其語意
type Priority string

// 定義優先級常數
const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Priorities 依顯示順序列出所有合法優先級
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// SubmissionRequest 提交請求，只在序列化為 POST /ingest 時短暫存在
type SubmissionRequest struct {
	IDs      []int64  `json:"ids" validate:"required,min=1,max=100,unique,dive,gt=0"` // 已驗證的識別碼
	Priority Priority `json:"priority" validate:"required,oneof=HIGH MEDIUM LOW"`     // 優先級
}

// SubmissionResponse POST /ingest 的回應
type SubmissionResponse struct {
	IngestionID JobHandle `json:"ingestion_id"`
}

// Batch 任務中的一個批次，由伺服器分配，客戶端唯讀
type Batch struct {
	BatchID string   `json:"batch_id"` // 批次識別碼
	IDs     []int64  `json:"ids"`      // 此批次包含的識別碼
	Status  JobState `json:"status"`   // 批次狀態
}

// JobStatus GET /status/{id} 的完整回應，每次輪詢整體替換，不做局部合併
type JobStatus struct {
	IngestionID JobHandle  `json:"ingestion_id"`         // 任務識別碼
	Status      JobState   `json:"status"`               // 伺服器計算的整體狀態
	Batches     []Batch    `json:"batches"`              // 批次列表（有序）
	Priority    Priority   `json:"priority,omitempty"`   // 提交時的優先級（可選）
	CreatedAt   *Timestamp `json:"created_at,omitempty"` // 建立時間（可選，寬鬆解析）
}

// Progress 回傳已完成批次的百分比，沒有批次時為 0
func (s *JobStatus) Progress() float64 {
	if s == nil || len(s.Batches) == 0 {
		return 0
	}
	completed := 0
	for _, b := range s.Batches {
		if b.Status == StateCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(s.Batches)) * 100
}

// CountByState 依狀態統計批次數量
func (s *JobStatus) CountByState() map[JobState]int {
	counts := make(map[JobState]int)
	if s == nil {
		return counts
	}
	for _, b := range s.Batches {
		counts[b.Status]++
	}
	return counts
}

// IsComplete 回傳伺服器回報的整體狀態是否為 COMPLETED
func (s *JobStatus) IsComplete() bool {
	return s != nil && s.Status == StateCompleted
}
