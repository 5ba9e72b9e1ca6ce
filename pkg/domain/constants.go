package domain

// Reserved run context keys written by the executor.
const (
	// KeyLastActionResult holds the boolean outcome of the most recent action.
	// It is seeded to true when a Run is created, so on_success/on_failure
	// transitions out of action-less states have a defined value.
	KeyLastActionResult = "last_action_result"

	// KeyLastError holds the message of the most recent failed action.
	KeyLastError = "last_error"

	// KeyResult is the default key under which output-producing actions store their result.
	KeyResult = "result"
)
