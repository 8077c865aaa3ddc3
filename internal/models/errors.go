package models

import "errors"

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrEventFull          = errors.New("event is full")
	ErrAlreadyRegistered  = errors.New("user already registered for this event")
	ErrReservationPending = errors.New("a purchase for this event is already in progress")
	ErrVisitorNotFound    = errors.New("visitor not found")
	ErrAmbiguousCode      = errors.New("code prefix matches more than one visitor")
	ErrCapacityBelowCount = errors.New("capacity is lower than the number of issued tickets")
	ErrCodeExhausted      = errors.New("could not generate a unique redemption code")
	ErrPaymentNotFound    = errors.New("payment not found")
)
