package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Exchange-specific error codes
const (
	// Configuration family
	CodeFeeTooHigh               Code = "FEE_TOO_HIGH"
	CodeInvalidLiquidityProvider Code = "INVALID_LIQUIDITY_PROVIDER"
	CodeUnsupportedPermit        Code = "UNSUPPORTED_PERMIT"

	// Request errors
	CodeInvalidAmount    Code = "INVALID_AMOUNT"
	CodeInvalidPayload   Code = "INVALID_PAYLOAD"
	CodeSlippageExceeded Code = "SLIPPAGE_EXCEEDED"

	// Fund movement
	CodeTransferFailed        Code = "TRANSFER_FAILED"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvariantViolation    Code = "INVARIANT_VIOLATION"

	// Access control
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeUnauthorizedCallback Code = "UNAUTHORIZED_CALLBACK"

	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"
	CodeInvalidQuote             Code = "INVALID_QUOTE"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)

// parents groups specific codes under a broader family so callers can match
// the family with errors.Is.
var parents = map[Code]Code{
	CodeFeeTooHigh:               CodeConfigurationError,
	CodeInvalidLiquidityProvider: CodeConfigurationError,
	CodeUnsupportedPermit:        CodeConfigurationError,
	CodeInsufficientLiquidity:    CodeTransferFailed,
}

// Parent returns the family a code belongs to, or the code itself.
func (c Code) Parent() Code {
	if p, ok := parents[c]; ok {
		return p
	}
	return c
}

// In reports whether c is family or a member of family.
func (c Code) In(family Code) bool {
	return c == family || c.Parent() == family
}
