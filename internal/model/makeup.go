package model

// Lesson 调课记录：StudentInfo 字段 + 时段序号 + 日期
type Lesson struct {
	StudentID string   `json:"studentId"         firestore:"studentId"`
	Name      string   `json:"name"              firestore:"name"`
	Subject   string   `json:"subject"           firestore:"subject"`
	Status    string   `json:"status"            firestore:"status"`
	Seat      string   `json:"seat"              firestore:"seat"`
	Grade     string   `json:"grade"             firestore:"grade"`
	ClassType string   `json:"classType"         firestore:"classType"`
	Duration  string   `json:"duration"          firestore:"duration"`
	Teacher   *Teacher `json:"teacher,omitempty" firestore:"teacher,omitempty"`
	Period    int      `json:"period"            firestore:"period"`
	Date      string   `json:"date"              firestore:"date"`
}

// MakeupLessonDoc students/{studentId}/makeupLessons/{docId}
// 以及 students/{studentId}/makeupLessonsArchive/{docId}
type MakeupLessonDoc struct {
	Lessons []Lesson `json:"lessons" firestore:"lessons"`
}

// Clone 深拷贝
func (d *MakeupLessonDoc) Clone() *MakeupLessonDoc {
	if d == nil {
		return nil
	}
	out := &MakeupLessonDoc{Lessons: make([]Lesson, len(d.Lessons))}
	for i, l := range d.Lessons {
		out.Lessons[i] = l
		if l.Teacher != nil {
			t := *l.Teacher
			out.Lessons[i].Teacher = &t
		}
	}
	return out
}
