package props

// Flatten exposes flatten to external test packages.
var Flatten = flatten
