package lessons

import (
	"sort"
	"strconv"

	"github.com/motioncourse/web/internal/models"
)

// MaxNextLessons caps the "next lessons" list.
const MaxNextLessons = 6

// HasAccess reports whether user may watch video: the video must belong to the
// course the user is enrolled in. Users without a course never have access.
func HasAccess(video models.Video, user models.User) bool {
	return user.Course != nil && *user.Course == video.Course
}

// Denial carries the ids shown on the access-denied page.
type Denial struct {
	VideoCourse int
	UserCourse  *int
}

// Check returns a Denial when user may not watch video.
func Check(video models.Video, user models.User) (Denial, bool) {
	if HasAccess(video, user) {
		return Denial{}, true
	}
	return Denial{VideoCourse: video.Course, UserCourse: user.Course}, false
}

// UserCourseLabel renders the user's course id, or "not assigned".
func (d Denial) UserCourseLabel() string {
	if d.UserCourse == nil {
		return "not assigned"
	}
	return strconv.Itoa(*d.UserCourse)
}

// NextLessons returns the lessons that follow current within its category:
// same category, not current itself, strictly greater lesson number, ordered
// by lesson number and capped at MaxNextLessons. Equal lesson numbers keep
// their upstream order and are not de-duplicated.
func NextLessons(videos []models.Video, current models.Video) []models.Video {
	next := make([]models.Video, 0, MaxNextLessons)
	for _, v := range videos {
		if v.CategoryLesson.ID != current.CategoryLesson.ID {
			continue
		}
		if v.ID == current.ID {
			continue
		}
		if v.LessonNumber <= current.LessonNumber {
			continue
		}
		next = append(next, v)
	}

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].LessonNumber < next[j].LessonNumber
	})

	if len(next) > MaxNextLessons {
		next = next[:MaxNextLessons]
	}
	return next
}

// ForCourse filters videos down to one course, ordered by category and lesson number.
func ForCourse(videos []models.Video, courseID int) []models.Video {
	out := make([]models.Video, 0, len(videos))
	for _, v := range videos {
		if v.Course == courseID {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CategoryLesson.ID != out[j].CategoryLesson.ID {
			return out[i].CategoryLesson.ID < out[j].CategoryLesson.ID
		}
		return out[i].LessonNumber < out[j].LessonNumber
	})
	return out
}
