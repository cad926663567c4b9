package model

import "testing"

func TestToggleLikeRoundTrip(t *testing.T) {
	n := &Note{}
	if !n.ToggleLike("a@example.com") {
		t.Fatalf("first toggle should add a like")
	}
	if n.Likes != 1 || len(n.LikedBy) != 1 {
		t.Fatalf("expected one like, got %d %v", n.Likes, n.LikedBy)
	}
	if n.ToggleLike("a@example.com") {
		t.Fatalf("second toggle should remove the like")
	}
	if n.Likes != 0 || len(n.LikedBy) != 0 {
		t.Fatalf("expected no likes, got %d %v", n.Likes, n.LikedBy)
	}
}

func TestToggleLikeDistinctEmails(t *testing.T) {
	n := &Note{}
	n.ToggleLike("a@example.com")
	n.ToggleLike("b@example.com")
	if n.Likes != 2 || len(n.LikedBy) != 2 {
		t.Fatalf("expected two likes, got %d %v", n.Likes, n.LikedBy)
	}
	n.ToggleLike("a@example.com")
	if n.Likes != 1 || n.LikedBy[0] != "b@example.com" {
		t.Fatalf("expected only b to remain, got %v", n.LikedBy)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	n := &Note{LikedBy: []string{"a"}, Likes: 1}
	c := n.Clone()
	c.ToggleLike("b")
	if len(n.LikedBy) != 1 {
		t.Fatalf("clone mutated original: %v", n.LikedBy)
	}
}

func TestSemestersForYear(t *testing.T) {
	cases := map[int][]int{1: {1, 2}, 2: {3, 4}, 4: {7, 8}, 0: nil, 5: nil}
	for year, want := range cases {
		got := SemestersForYear(year)
		if len(got) != len(want) {
			t.Fatalf("year %d: want %v got %v", year, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("year %d: want %v got %v", year, want, got)
			}
		}
	}
	if !ValidSemester(2, 3) || ValidSemester(2, 5) {
		t.Fatalf("semester validation is wrong for year 2")
	}
}

func TestAllowedExtension(t *testing.T) {
	allowed := []string{".jpg", ".jpeg", ".pdf", ".docx"}
	for _, name := range []string{"notes.PDF", "scan.jpeg", "a.b.docx"} {
		if !AllowedExtension(name, allowed) {
			t.Fatalf("%s should be allowed", name)
		}
	}
	for _, name := range []string{"notes.txt", "README", "archive.pdf.zip"} {
		if AllowedExtension(name, allowed) {
			t.Fatalf("%s should be rejected", name)
		}
	}
}
