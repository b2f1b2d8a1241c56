// Package model defines the core domain models used throughout the application.
package model

import "time"

// Student is a roster entry supplied by the session details API.
// The attendance workflow treats it as read-only.
type Student struct {
	ID         string `json:"studentId" validate:"required"`
	Name       string `json:"name" validate:"required"`
	RollNumber string `json:"rollNumber"`
	PhotoURL   string `json:"photo,omitempty"`
}

// Session describes one class meeting and the roster fixed for its lifetime.
type Session struct {
	StartedAt   time.Time `json:"-"`
	ID          string    `json:"sessionId" validate:"required"`
	SubjectName string    `json:"subjectName"`
	ClassName   string    `json:"className"`
	Date        string    `json:"date"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Roster      []Student `json:"students" validate:"dive"`
}

// Title returns a short human label for the session.
func (s Session) Title() string {
	switch {
	case s.SubjectName != "" && s.ClassName != "":
		return s.SubjectName + " · " + s.ClassName
	case s.SubjectName != "":
		return s.SubjectName
	case s.ClassName != "":
		return s.ClassName
	default:
		return s.ID
	}
}

// StudentByID returns the roster entry with the given identifier.
func (s Session) StudentByID(id string) (Student, bool) {
	for _, student := range s.Roster {
		if student.ID == id {
			return student, true
		}
	}
	return Student{}, false
}

// StudentByRoll returns the roster entry with the given roll number.
func (s Session) StudentByRoll(roll string) (Student, bool) {
	if roll == "" {
		return Student{}, false
	}
	for _, student := range s.Roster {
		if student.RollNumber == roll {
			return student, true
		}
	}
	return Student{}, false
}
