package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Configuration family
	CodeFeeTooHigh:               "Fee exceeds the 100 bps ceiling",
	CodeInvalidLiquidityProvider: "Liquidity provider cannot serve this stablecoin",
	CodeUnsupportedPermit:        "Stablecoin has no permit dialect",

	// Request errors
	CodeInvalidAmount:    "Amount must be positive and fit in 256 bits",
	CodeInvalidPayload:   "Payload does not match a recognized shape",
	CodeSlippageExceeded: "Computed amount violates the caller's bound",

	// Fund movement
	CodeTransferFailed:        "Token transfer failed",
	CodeInsufficientLiquidity: "Insufficient venue liquidity",
	CodeInvariantViolation:    "Exchange balance invariant violated",

	// Access control
	CodeUnauthorized:         "Caller is not the owner",
	CodeUnauthorizedCallback: "Swap callback from unknown pool",

	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeContractCallFailed:       "Smart contract call failed",
	CodeInvalidQuote:             "Invalid quote data",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
