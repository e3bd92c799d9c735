package eval

// Template is the starter deployment written by `stackup init`. Every value
// matches the built-in default, so deleting a line changes nothing.
const Template = `// stackup deployment
//
// Values can be taken from -D flags, e.g.:
//   instance = new Dynamic { keyName = read?("prop:keyName") ?? "vockey" }

stack = "wordpress"
provider = "aws"
region = "us-west-2"

network = new Dynamic {
  cidrBlock = "10.0.0.0/16"
  subnetCidrBlock = "10.0.1.0/24"
  availabilityZone = "us-west-2a"
  sshCidr = "0.0.0.0/0"
  httpCidr = "0.0.0.0/0"
}

instance = new Dynamic {
  imageId = "ami-0747e613a2a1ff483"
  instanceType = "t2.micro"
  keyName = "vockey"
  bootScript = "dockerWPuserdata.sh"
  publicIp = true
  name = "wp-instance"
}

readiness = new Dynamic {
  interval = "5s"
  maxAttempts = 60
}

termination = new Dynamic {
  interval = "5s"
  maxAttempts = 60
}

rollback = new Dynamic {
  retries = 3
  baseDelay = "2s"
}

tags = new Mapping {
  ["project"] = "wordpress"
}
`
