package roster

import "github.com/Veraticus/rollcall/internal/model"

// Fixture is a predefined set of students.
type Fixture int

const (
	// FixtureClassroom is three students: Ada (01), Ben (02), Cy (03).
	FixtureClassroom Fixture = iota
	// FixtureNameless has students the server returned without names.
	FixtureNameless
	// FixtureSharedRolls has two students sharing a roll number.
	FixtureSharedRolls
)

// Students returns the fixture's students.
func (f Fixture) Students() []model.Student {
	switch f {
	case FixtureClassroom:
		return []model.Student{
			{ID: "A", Name: "Ada", RollNumber: "01"},
			{ID: "B", Name: "Ben", RollNumber: "02"},
			{ID: "C", Name: "Cy", RollNumber: "03"},
		}
	case FixtureNameless:
		return []model.Student{
			{ID: "N1", RollNumber: "11"},
			{ID: "N2", RollNumber: "12"},
		}
	case FixtureSharedRolls:
		return []model.Student{
			{ID: "R1", Name: "Rae", RollNumber: "21"},
			{ID: "R2", Name: "Rex", RollNumber: "21"},
		}
	default:
		return nil
	}
}

// String returns the fixture name.
func (f Fixture) String() string {
	switch f {
	case FixtureClassroom:
		return "classroom"
	case FixtureNameless:
		return "nameless"
	case FixtureSharedRolls:
		return "shared-rolls"
	default:
		return "unknown"
	}
}
