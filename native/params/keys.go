package params

// ParamsKeyPauses stores the runtime module pause overrides.
const ParamsKeyPauses = "system/pauses"
