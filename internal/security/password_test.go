package security

import "testing"

func TestGenerateTemporaryPassword_SatisfiesPolicy(t *testing.T) {
	for i := 0; i < 200; i++ {
		pw, err := GenerateTemporaryPassword(MinTemporaryPasswordLength)
		if err != nil {
			t.Fatalf("GenerateTemporaryPassword: %v", err)
		}
		if len(pw) != MinTemporaryPasswordLength {
			t.Fatalf("len = %d, want %d", len(pw), MinTemporaryPasswordLength)
		}
		if err := ValidatePasswordPolicy(pw); err != nil {
			t.Fatalf("generated password %q violates policy: %v", pw, err)
		}
	}
}

func TestGenerateTemporaryPassword_ClampsLength(t *testing.T) {
	pw, err := GenerateTemporaryPassword(4)
	if err != nil {
		t.Fatalf("GenerateTemporaryPassword: %v", err)
	}
	if len(pw) != MinTemporaryPasswordLength {
		t.Errorf("len = %d, want %d", len(pw), MinTemporaryPasswordLength)
	}
	pw, err = GenerateTemporaryPassword(32)
	if err != nil {
		t.Fatalf("GenerateTemporaryPassword: %v", err)
	}
	if len(pw) != 32 {
		t.Errorf("len = %d, want 32", len(pw))
	}
}

func TestGenerateTemporaryPassword_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		pw, err := GenerateTemporaryPassword(MinTemporaryPasswordLength)
		if err != nil {
			t.Fatalf("GenerateTemporaryPassword: %v", err)
		}
		if seen[pw] {
			t.Fatalf("duplicate password %q", pw)
		}
		seen[pw] = true
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	testCases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "Abcdefgh1234567!", true},
		{"too short", "Abc1!", false},
		{"no upper", "abcdefgh1234567!", false},
		{"no lower", "ABCDEFGH1234567!", false},
		{"no digit", "Abcdefghijklmno!", false},
		{"no symbol", "Abcdefgh12345678", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordPolicy(tc.password)
			if tc.ok && err != nil {
				t.Errorf("ValidatePasswordPolicy(%q): %v", tc.password, err)
			}
			if !tc.ok && err == nil {
				t.Errorf("ValidatePasswordPolicy(%q) should fail", tc.password)
			}
		})
	}
}
