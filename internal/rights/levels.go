// Copyright 2026 The WikiForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rights

// Level is one of the fixed access-level vocabulary.
type Level string

const (
	LevelLogin       Level = "login"
	LevelView        Level = "view"
	LevelEdit        Level = "edit"
	LevelComment     Level = "comment"
	LevelDelete      Level = "delete"
	LevelUndelete    Level = "undelete"
	LevelRegister    Level = "register"
	LevelAdmin       Level = "admin"
	LevelProgramming Level = "programming"
)

// AllLevels lists every level a right record may carry, in display order.
var AllLevels = []Level{
	LevelAdmin, LevelView, LevelEdit, LevelComment, LevelDelete,
	LevelUndelete, LevelRegister, LevelProgramming,
}

// ValidLevel reports whether l belongs to the level vocabulary.
func ValidLevel(l Level) bool {
	if l == LevelLogin {
		return true
	}
	for _, known := range AllLevels {
		if l == known {
			return true
		}
	}
	return false
}

// Mutating reports whether the level writes to the wiki and is therefore
// refused outright in read-only mode.
func (l Level) Mutating() bool {
	switch l {
	case LevelEdit, LevelDelete, LevelUndelete, LevelComment, LevelRegister:
		return true
	}
	return false
}

// actionLevels maps UI action names to the level they require. Unlisted
// actions require edit.
var actionLevels = map[string]Level{
	"login":       LevelLogin,
	"logout":      LevelLogin,
	"loginerror":  LevelLogin,
	"loginsubmit": LevelLogin,

	"view":        LevelView,
	"viewrev":     LevelView,
	"get":         LevelView,
	"downloadrev": LevelView,
	"plain":       LevelView,
	"raw":         LevelView,
	"attach":      LevelView,
	"charting":    LevelView,
	"skin":        LevelView,
	"download":    LevelView,
	"dot":         LevelView,
	"svg":         LevelView,
	"pdf":         LevelView,
	"redirect":    LevelView,
	"export":      LevelView,
	"jsx":         LevelView,
	"ssx":         LevelView,
	"tex":         LevelView,
	"temp":        LevelView,
	"unknown":     LevelView,

	"delete": LevelDelete,
	"reset":  LevelDelete,

	"deletespace":    LevelAdmin,
	"deleteversions": LevelAdmin,
	"admin":          LevelAdmin,
	"import":         LevelAdmin,

	"undelete": LevelUndelete,

	"commentadd":  LevelComment,
	"commentsave": LevelComment,

	"register": LevelRegister,

	"create": LevelEdit,
}

// LevelForAction returns the level required by a UI action name.
func LevelForAction(action string) Level {
	if l, ok := actionLevels[action]; ok {
		return l
	}
	return LevelEdit
}
