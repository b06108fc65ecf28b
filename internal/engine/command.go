package engine

type CommandType int

const (
	CmdPlaceBid CommandType = iota
	CmdCancelBid
	CmdRunLiquidation
	CmdResetLiquidation
	CmdCancelLiquidation
	CmdSnapshot
)

type Command struct {
	Type     CommandType
	Bidder   string     // CmdPlaceBid
	Amount   uint64     // CmdPlaceBid, CmdResetLiquidation
	Discount uint8      // CmdPlaceBid
	Sequence uint64     // CmdCancelBid
	Account  string     // CmdResetLiquidation
	Resp     chan reply // engine sends the result back here
}

type reply struct {
	value any
	err   error
}
