package escrow

import "fmt"

// Operation names a caller-invokable escrow transition.
type Operation uint8

const (
	OpCreate Operation = iota + 1
	OpFund
	OpSubmit
	OpApprove
	OpRelease
	OpDispute
	OpRefund
)

// Operations lists every mutating operation.
var Operations = []Operation{OpCreate, OpFund, OpSubmit, OpApprove, OpRelease, OpDispute, OpRefund}

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpFund:
		return "fund"
	case OpSubmit:
		return "submit"
	case OpApprove:
		return "approve"
	case OpRelease:
		return "release"
	case OpDispute:
		return "dispute"
	case OpRefund:
		return "refund"
	default:
		return fmt.Sprintf("operation(%d)", uint8(op))
	}
}

// Role identifies which party of a record may invoke an operation.
type Role uint8

const (
	RolePayer Role = iota + 1
	RolePayee
)

func (r Role) String() string {
	switch r {
	case RolePayer:
		return "payer"
	case RolePayee:
		return "payee"
	default:
		return "unknown"
	}
}

// RequiredRole returns the single role allowed to invoke op.
func RequiredRole(op Operation) Role {
	switch op {
	case OpSubmit, OpRelease:
		return RolePayee
	default:
		return RolePayer
	}
}

// Authorized reports whether caller holds the role op requires on rec.
func Authorized(op Operation, rec *Escrow, caller [20]byte) bool {
	if rec == nil {
		return false
	}
	switch RequiredRole(op) {
	case RolePayer:
		return caller == rec.Payer
	case RolePayee:
		return caller == rec.Payee
	}
	return false
}
