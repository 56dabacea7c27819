package domain

// TxStatus 交易结果状态
type TxStatus string

const (
	TxConfirmed TxStatus = "confirmed" // 上链成功
	TxFailed    TxStatus = "failed"    // 提交失败或回滚
	TxSkipped   TxStatus = "skipped"   // 已持有/已处理，未提交
	TxNoop      TxStatus = "noop"      // 无事可做（如余额为 0）
)

// TxResult 买入/卖出的结果
type TxResult struct {
	Status      TxStatus
	Address     string
	TxHash      string
	BlockNumber uint64
	Err         error
}

// OK confirmed 和 noop 视为成功
func (r TxResult) OK() bool {
	return r.Status == TxConfirmed || r.Status == TxNoop
}
