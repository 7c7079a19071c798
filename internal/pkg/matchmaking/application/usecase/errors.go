package usecase

import "fmt"

// ErrPersistence indicates a coordination store failure inside a use case
var ErrPersistence = fmt.Errorf("matchmaking use case persistence error")
