package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for a join code.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidTransition rejects an operation not valid for the session status.
	ErrInvalidTransition = errors.New("operation not valid for current session status")
	// ErrStaleQuestion rejects an answer that does not target the current question.
	ErrStaleQuestion = errors.New("question is no longer current")
	// ErrDuplicateSubmission rejects a second answer for the same question.
	ErrDuplicateSubmission = errors.New("question already answered")
	// ErrTimeExpired rejects an answer arriving after the question's countdown fired.
	ErrTimeExpired = errors.New("time expired for this question")
	// ErrSessionFull rejects a join at participant capacity.
	ErrSessionFull = errors.New("session is full")
	// ErrSessionClosed rejects joining or acting on an ended session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrParticipantPaused rejects submissions while a participant is paused.
	ErrParticipantPaused = errors.New("participant is paused")
	// ErrParticipantClosed rejects any action after a participant's access
	// was terminated by the violation policy.
	ErrParticipantClosed = errors.New("participant access terminated")
)
