package model

import "strings"

// Department is one entry of the static department catalog.
type Department struct {
	Name    string
	Aliases []string
}

// Departments is the fixed enumeration used for retrieval scoping.
var Departments = []Department{
	{Name: "소프트웨어학과"},
	{Name: "컴퓨터공학과"},
	{Name: "공주대학교"},
	{Name: "공주대학교 SW중심대학사업단", Aliases: []string{"SW중심대학사업단"}},
	{Name: "SW중심대학사업단", Aliases: []string{"공주대학교 SW중심대학사업단"}},
	{Name: "스마트정보기술공학과"},
	{Name: "인공지능학부"},
	{Name: "공주대학교 현장실습지원센터"},
}

// DocumentCategories describes the corpus coverage to the admissibility gate.
var DocumentCategories = []string{
	"학사 일정 및 수강신청",
	"장학금",
	"교과과정 및 졸업요건",
	"교수진 및 연락처",
	"공지사항 및 행사",
	"현장실습 및 취업",
}

// DepartmentNames returns the catalog names in their fixed order.
func DepartmentNames() []string {
	names := make([]string, 0, len(Departments))
	for _, d := range Departments {
		names = append(names, d.Name)
	}
	return names
}

// LookupDepartment resolves an exact catalog name.
func LookupDepartment(name string) (Department, bool) {
	name = strings.TrimSpace(name)
	for _, d := range Departments {
		if d.Name == name {
			return d, true
		}
	}
	return Department{}, false
}

// FilterValues returns the department and all of its aliases, the OR-set of a retrieval filter.
func (d Department) FilterValues() []string {
	out := []string{d.Name}
	for _, a := range d.Aliases {
		if a != d.Name {
			out = append(out, a)
		}
	}
	return out
}

// MentionedDepartment finds the longest catalog name or alias literally present in text.
func MentionedDepartment(text string) (Department, bool) {
	var (
		best    Department
		bestLen int
	)
	for _, d := range Departments {
		for _, v := range d.FilterValues() {
			if len(v) > bestLen && strings.Contains(text, v) {
				best, bestLen = d, len(v)
			}
		}
	}
	return best, bestLen > 0
}
